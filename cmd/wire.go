package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/docsift/mailscan/internal/analysis"
	"github.com/docsift/mailscan/internal/config"
	"github.com/docsift/mailscan/internal/directory"
	"github.com/docsift/mailscan/internal/intake"
	"github.com/docsift/mailscan/internal/ledger"
	"github.com/docsift/mailscan/internal/notify"
	"github.com/docsift/mailscan/internal/ops"
	"github.com/docsift/mailscan/internal/pipeline"
	"github.com/docsift/mailscan/internal/report"
	"github.com/docsift/mailscan/internal/storage"
)

// services bundles the wired components shared by serve and check. The
// Postgres pool and Redis client are process-wide; close tears them down.
type services struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	rdb      *redis.Client
	signal   ops.Signal
	filter   *intake.Filter
	pipeline *pipeline.Pipeline
}

func (s *services) close() {
	s.pool.Close()
	_ = s.rdb.Close()
}

// buildServices loads the configuration and connects the backing services.
func buildServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf(`configuration missing or incomplete: %w

Create a config.yaml file by running:
  mailscan init`, err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	opt, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("invalid redis.url: %w", err)
	}
	rdb := redis.NewClient(opt)

	publisher := notify.NewPublisher(rdb, cfg.Queue.Name)
	if err := publisher.Ping(ctx); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Info("connected to Redis", "queue", cfg.Queue.Name)

	led, err := ledger.New(ctx, pool)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}

	pipe := pipeline.New(pipeline.Config{
		Ledger:         led,
		Store:          storage.NewFileStore(cfg.Storage.Root),
		Analysis:       analysis.NewClient(cfg.Analysis),
		Renderer:       report.NewPDFRenderer(),
		Notifier:       publisher,
		TempDir:        cfg.Storage.TempDir,
		AnalyzeFolder:  cfg.Storage.AnalyzeFolder,
		EvaluateFolder: cfg.Storage.EvaluateFolder,
		MaxInflight:    cfg.MaxInflight,
	})

	filter := intake.NewFilter(cfg.Intake, directory.New(pool), publisher, pipe)

	return &services{
		cfg:      cfg,
		pool:     pool,
		rdb:      rdb,
		signal:   ops.NewSignal(cfg.OpsWebhook),
		filter:   filter,
		pipeline: pipe,
	}, nil
}
