// Package ledger provides the Postgres-backed record of analysis and
// evaluation requests. Every validated attachment gets exactly one row,
// created pending and moved to completed exactly once. The ledger is
// append-and-complete only; reporting over it lives elsewhere.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docsift/mailscan/internal/models"
)

// DB is the query surface the ledger needs. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger persists AnalysisRequest rows in Postgres.
type Ledger struct {
	pool DB
}

// New creates a ledger backed by the given Postgres pool and ensures the
// requests table exists.
func New(ctx context.Context, pool DB) (*Ledger, error) {
	l := &Ledger{pool: pool}
	if err := l.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure request schema: %w", err)
	}
	slog.Info("request ledger initialised")
	return l, nil
}

func (l *Ledger) ensureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_requests (
			id             BIGSERIAL PRIMARY KEY,
			correlation_id TEXT NOT NULL UNIQUE,
			user_id        BIGINT NOT NULL,
			input_filename TEXT NOT NULL,
			input_path     TEXT NOT NULL,
			output_path    TEXT,
			kind           TEXT NOT NULL,
			origin         TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'pending',
			created_at     TIMESTAMPTZ DEFAULT NOW(),
			updated_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_requests_user ON analysis_requests(user_id);
		CREATE INDEX IF NOT EXISTS idx_requests_status ON analysis_requests(status);
	`)
	return err
}

// Create inserts a new pending request row and returns it.
func (l *Ledger) Create(ctx context.Context, draft models.RequestDraft) (*models.AnalysisRequest, error) {
	req := &models.AnalysisRequest{
		CorrelationID: uuid.New().String(),
		UserID:        draft.UserID,
		InputFilename: draft.InputFilename,
		InputPath:     draft.InputPath,
		Kind:          draft.Kind,
		Origin:        models.OriginMail,
		Status:        models.StatusPending,
	}

	row := l.pool.QueryRow(ctx, `
		INSERT INTO analysis_requests
			(correlation_id, user_id, input_filename, input_path, kind, origin, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, req.CorrelationID, req.UserID, req.InputFilename, req.InputPath, string(req.Kind), req.Origin, string(req.Status))

	if err := row.Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert analysis request: %w", err)
	}

	return req, nil
}

// MarkCompleted moves a pending request to completed, recording the output
// path when a report was produced. The status guard makes completion a
// one-shot transition.
func (l *Ledger) MarkCompleted(ctx context.Context, id int64, outputPath *string) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE analysis_requests
		SET status = $2, output_path = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, string(models.StatusCompleted), outputPath, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("complete analysis request %d: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis request %d is not pending", id)
	}

	return nil
}
