package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docsift/mailscan/internal/mailbox"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single intake pass over the mailbox and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svcs, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svcs.close()

		tr, err := mailbox.Dial(svcs.cfg.IMAP)
		if err != nil {
			return err
		}
		defer func() { _ = tr.Logout() }()

		if _, err := tr.Select(svcs.cfg.IMAP.Mailbox, false); err != nil {
			return err
		}

		// Nothing watches the connection in one-shot mode, so keep the
		// server's unilateral updates drained while the pass runs or the
		// client's reader goroutine wedges once the buffer fills.
		stopDrain := make(chan struct{})
		defer close(stopDrain)
		go func() {
			for {
				select {
				case <-tr.Updates():
				case <-stopDrain:
					return
				}
			}
		}()

		if err := svcs.filter.Process(ctx, tr); err != nil {
			return fmt.Errorf("intake pass failed: %w", err)
		}

		// One-shot mode: block until every dispatched attachment settled.
		svcs.pipeline.Wait()

		return nil
	},
}
