package main

import (
	"log/slog"
	"os"

	"github.com/docsift/mailscan/cmd"
)

func main() {
	// Default handler until the root command applies the configured level.
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))

	if err := cmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
