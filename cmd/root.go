package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "mailscan",
	Short: "Watch a mailbox for document analysis requests and process them",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Setup logger after flag parsing
		setupLogger()
	},
}

func init() {
	// Add persistent flag to enable verbose logging
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose (debug) logging")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	cobra.OnInitialize(initConfig)

	// Register subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(notifyWorkerCmd)
	rootCmd.AddCommand(initCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("No config.yaml found in current directory.",
				"hint", "Run `mailscan init` to create one interactively.")
		} else {
			slog.Error("Failed to read config", "error", err)
		}
	} else {
		// Validate config after successful load
		validateConfig()
	}
}

func validateConfig() {
	analyzeSubject := viper.GetString("intake.analyze_subject")
	evaluateSubject := viper.GetString("intake.evaluate_subject")

	if analyzeSubject != "" && analyzeSubject == evaluateSubject {
		slog.Warn("Analyze and evaluate subjects are identical",
			"subject", analyzeSubject,
			"hint", "Incoming requests cannot be classified; configure two distinct subject lines")
	}

	if viper.GetString("analysis.api_key") == "" {
		slog.Warn("No analysis.api_key configured - analysis service calls will be rejected")
	}

	if viper.GetString("smtp.server") == "" {
		slog.Warn("No smtp.server configured - the notify-worker cannot deliver emails")
	}

	if viper.GetString("ops.webhook_url") == "" {
		slog.Warn("No ops.webhook_url configured - connection alerts will only appear in logs")
	}
}

func setupLogger() {
	var level slog.Level
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
