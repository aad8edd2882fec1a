package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docsift/mailscan/internal/mailbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Continuously watch the mailbox and process analysis requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("Starting serve mode (watching mailbox)")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svcs, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svcs.close()

		supervisor := mailbox.NewSupervisor(mailbox.Config{
			Dial: func() (mailbox.Transport, error) {
				return mailbox.Dial(svcs.cfg.IMAP)
			},
			Mailbox: svcs.cfg.IMAP.Mailbox,
			Signal:  svcs.signal,
			Handler: svcs.filter.Process,
		})

		err = supervisor.Run(ctx)

		// Let in-flight attachments settle before tearing down the pools.
		slog.Info("waiting for in-flight attachments")
		svcs.pipeline.Wait()

		return err
	},
}
