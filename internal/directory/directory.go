// Package directory resolves sender addresses to registered users. Accounts
// are created elsewhere; this service only looks them up.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/docsift/mailscan/internal/models"
)

// ErrUserNotFound is returned when no account matches the address.
var ErrUserNotFound = errors.New("user not found")

// Resolver looks up users by their email address.
type Resolver interface {
	ResolveByEmail(ctx context.Context, address string) (*models.User, error)
}

// DB is the query surface the directory needs. *pgxpool.Pool satisfies it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Directory is the Postgres-backed Resolver over the users table.
type Directory struct {
	pool DB
}

// New creates a directory backed by the given pool.
func New(pool DB) *Directory {
	return &Directory{pool: pool}
}

// ResolveByEmail finds the user registered under the address, matching
// case-insensitively.
func (d *Directory) ResolveByEmail(ctx context.Context, address string) (*models.User, error) {
	var u models.User

	row := d.pool.QueryRow(ctx, `
		SELECT id, name, email
		FROM users
		WHERE lower(email) = lower($1)
	`, address)

	if err := row.Scan(&u.ID, &u.Name, &u.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("look up user %q: %w", address, err)
	}

	return &u, nil
}
