// Package config provides typed access to the viper-backed configuration.
// Settings come from config.yaml in the working directory, overridable
// through environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// IMAP holds mailbox connection settings.
type IMAP struct {
	Server   string
	Port     int
	Username string
	Password string
	Mailbox  string
}

// Addr returns the host:port dial address.
func (c IMAP) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

// Intake holds the subject constants that classify incoming requests.
type Intake struct {
	AnalyzeSubject  string
	EvaluateSubject string
}

// Analysis holds the external analysis service endpoint and credentials.
type Analysis struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Storage holds the object storage root and per-kind folder names.
type Storage struct {
	Root           string
	AnalyzeFolder  string
	EvaluateFolder string
	TempDir        string
}

// Queue holds the Redis work-queue settings for outbound notifications.
type Queue struct {
	RedisURL string
	Name     string
}

// SMTP holds delivery settings for the notification worker.
type SMTP struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	Security string // "ssl" or "starttls"
}

// Config is the full service configuration.
type Config struct {
	IMAP        IMAP
	Intake      Intake
	Analysis    Analysis
	Storage     Storage
	Queue       Queue
	SMTP        SMTP
	PostgresURL string
	OpsWebhook  string
	MaxInflight int64
}

// Load reads the configuration out of viper and applies defaults for
// optional settings.
func Load() (*Config, error) {
	cfg := &Config{
		IMAP: IMAP{
			Server:   viper.GetString("imap.server"),
			Port:     viper.GetInt("imap.port"),
			Username: viper.GetString("imap.username"),
			Password: viper.GetString("imap.password"),
			Mailbox:  viper.GetString("imap.mailbox"),
		},
		Intake: Intake{
			AnalyzeSubject:  viper.GetString("intake.analyze_subject"),
			EvaluateSubject: viper.GetString("intake.evaluate_subject"),
		},
		Analysis: Analysis{
			BaseURL:   viper.GetString("analysis.base_url"),
			APIKey:    viper.GetString("analysis.api_key"),
			APISecret: viper.GetString("analysis.api_secret"),
			Timeout:   viper.GetDuration("analysis.timeout"),
		},
		Storage: Storage{
			Root:           viper.GetString("storage.root"),
			AnalyzeFolder:  viper.GetString("storage.analyze_folder"),
			EvaluateFolder: viper.GetString("storage.evaluate_folder"),
			TempDir:        viper.GetString("storage.temp_dir"),
		},
		Queue: Queue{
			RedisURL: viper.GetString("redis.url"),
			Name:     viper.GetString("redis.queue"),
		},
		SMTP: SMTP{
			Server:   viper.GetString("smtp.server"),
			Port:     viper.GetInt("smtp.port"),
			Username: viper.GetString("smtp.username"),
			Password: viper.GetString("smtp.password"),
			From:     viper.GetString("smtp.from"),
			Security: viper.GetString("smtp.security"),
		},
		PostgresURL: viper.GetString("postgres.url"),
		OpsWebhook:  viper.GetString("ops.webhook_url"),
		MaxInflight: viper.GetInt64("pipeline.max_inflight"),
	}

	if cfg.IMAP.Mailbox == "" {
		cfg.IMAP.Mailbox = "INBOX"
	}
	if cfg.Intake.AnalyzeSubject == "" {
		cfg.Intake.AnalyzeSubject = "Analyze Document"
	}
	if cfg.Intake.EvaluateSubject == "" {
		cfg.Intake.EvaluateSubject = "Evaluate Document"
	}
	if cfg.Storage.AnalyzeFolder == "" {
		cfg.Storage.AnalyzeFolder = "analyze_documents"
	}
	if cfg.Storage.EvaluateFolder == "" {
		cfg.Storage.EvaluateFolder = "evaluate_documents"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "notifications"
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 2 * time.Minute
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 16
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	if cfg.IMAP.Server == "" {
		return nil, fmt.Errorf("imap.server is not configured")
	}
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("postgres.url is not configured")
	}
	if cfg.Queue.RedisURL == "" {
		return nil, fmt.Errorf("redis.url is not configured")
	}
	if cfg.Analysis.BaseURL == "" {
		return nil, fmt.Errorf("analysis.base_url is not configured")
	}

	return cfg, nil
}
