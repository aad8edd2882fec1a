package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docsift/mailscan/internal/config"
	"github.com/docsift/mailscan/internal/notify"
)

var notifyWorkerCmd = &cobra.Command{
	Use:   "notify-worker",
	Short: "Consume the notification queue and deliver user emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !viper.InConfig("smtp") {
			return fmt.Errorf("config.yaml is missing an smtp section. Run `mailscan init`")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		opt, err := redis.ParseURL(cfg.Queue.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis.url: %w", err)
		}
		rdb := redis.NewClient(opt)
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		slog.Info("Starting notification worker", "queue", cfg.Queue.Name)

		mailer := notify.NewMailer(cfg.SMTP)
		consumer := notify.NewConsumer(rdb, cfg.Queue.Name)

		return consumer.Run(ctx, mailer.HandleJob)
	},
}
