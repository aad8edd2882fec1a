package directory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

// fakeRow scripts a pgx.Row.
type fakeRow struct {
	err  error
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.scan != nil {
		return r.scan(dest...)
	}
	return nil
}

// fakeDB records the lookup and returns a scripted row.
type fakeDB struct {
	row  fakeRow
	sql  string
	args []any
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = sql
	f.args = args
	return f.row
}

func TestResolveByEmail(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*int64) = 3
		*dest[1].(*string) = "Ada Lovelace"
		*dest[2].(*string) = "ada.lovelace@example.com"
		return nil
	}}}
	d := New(db)

	u, err := d.ResolveByEmail(context.Background(), "Ada.Lovelace@Example.com")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if u.ID != 3 || u.Name != "Ada Lovelace" || u.Email != "ada.lovelace@example.com" {
		t.Errorf("user = %+v", u)
	}
	// Matching is case-insensitive on the database side.
	if !strings.Contains(db.sql, "lower(email) = lower($1)") {
		t.Errorf("lookup is not case-insensitive: %s", db.sql)
	}
	if len(db.args) != 1 || db.args[0] != "Ada.Lovelace@Example.com" {
		t.Errorf("lookup args = %v", db.args)
	}
}

func TestResolveByEmailUnknownSender(t *testing.T) {
	t.Parallel()

	d := New(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})

	_, err := d.ResolveByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestResolveByEmailQueryError(t *testing.T) {
	t.Parallel()

	d := New(&fakeDB{row: fakeRow{err: errors.New("connection refused")}})

	_, err := d.ResolveByEmail(context.Background(), "ada.lovelace@example.com")
	if err == nil || errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want a wrapped query error", err)
	}
}
