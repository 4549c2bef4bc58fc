package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tutor_booking_engine/internal/app"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	// Telegram is optional; without a token the bot and its channel are off.
	TelegramToken   string `envconfig:"TELEGRAM_TOKEN"`
	AdminTelegramID int64  `envconfig:"ADMIN_TELEGRAM_ID"`

	RabbitURL      string `envconfig:"RABBIT_URL"`
	NotifyExchange string `envconfig:"NOTIFY_EXCHANGE" default:"tutoring.notifications"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"no-reply@tutoring.local"`

	// Without Omise keys payouts go through the logging dev gateway.
	OmisePublicKey string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string `envconfig:"OMISE_SECRET_KEY"`

	GracePeriod                 time.Duration `envconfig:"GRACE_PERIOD" default:"15m"`
	NoShowWarningAfter          time.Duration `envconfig:"NO_SHOW_WARNING_AFTER" default:"10m"`
	StudentNoShowTeacherPercent int           `envconfig:"STUDENT_NO_SHOW_TEACHER_PERCENT" default:"50"`
	DisputeWindow               time.Duration `envconfig:"DISPUTE_WINDOW" default:"72h"`
	MaxSlotLength               time.Duration `envconfig:"MAX_SLOT_LENGTH" default:"60m"`
	ReminderTolerance           time.Duration `envconfig:"REMINDER_TOLERANCE" default:"2m"`
	MinAutoPayout               int64         `envconfig:"MIN_AUTO_PAYOUT" default:"500000"`
	ExternalCallTimeout         time.Duration `envconfig:"EXTERNAL_CALL_TIMEOUT" default:"15s"`
	ConfirmationFollowupDelay   time.Duration `envconfig:"CONFIRMATION_FOLLOWUP_DELAY" default:"10s"`
	JoinEarlyWindow             time.Duration `envconfig:"JOIN_EARLY_WINDOW" default:"10m"`
	OutboxMaxAttempts           int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"5"`
	OutboxBatchSize             int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxParallelism           int           `envconfig:"OUTBOX_PARALLELISM" default:"4"`
	SweepBatchSize              int           `envconfig:"SWEEP_BATCH_SIZE" default:"500"`

	CronSpecNoShow          string `envconfig:"CRON_SPEC_NO_SHOW" default:"* * * * *"`
	CronSpecReminders       string `envconfig:"CRON_SPEC_REMINDERS" default:"* * * * *"`
	CronSpecCompletion      string `envconfig:"CRON_SPEC_COMPLETION" default:"*/5 * * * *"`
	CronSpecEscrowRelease   string `envconfig:"CRON_SPEC_ESCROW_RELEASE" default:"0 * * * *"`
	CronSpecAutoPayout      string `envconfig:"CRON_SPEC_AUTO_PAYOUT" default:"0 2 * * *"`
	CronSpecPayoutReconcile string `envconfig:"CRON_SPEC_PAYOUT_RECONCILE" default:"*/10 * * * *"`
	CronSpecNotifications   string `envconfig:"CRON_SPEC_NOTIFICATIONS" default:"@every 15s"`
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.TelegramToken != "" && c.AdminTelegramID == 0 {
		return fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	if (c.OmisePublicKey == "") != (c.OmiseSecretKey == "") {
		return fmt.Errorf("OMISE_PUBLIC_KEY and OMISE_SECRET_KEY must be set together")
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}

// Policy extracts the service rules from the configuration.
func (c *AppConfig) Policy() app.Policy {
	return app.Policy{
		GracePeriod:                 c.GracePeriod,
		NoShowWarningAfter:          c.NoShowWarningAfter,
		StudentNoShowTeacherPercent: c.StudentNoShowTeacherPercent,
		DisputeWindow:               c.DisputeWindow,
		MaxSlotLength:               c.MaxSlotLength,
		ReminderTolerance:           c.ReminderTolerance,
		JoinEarlyWindow:             c.JoinEarlyWindow,
		ConfirmationFollowupDelay:   c.ConfirmationFollowupDelay,
		MinAutoPayout:               c.MinAutoPayout,
		ExternalCallTimeout:         c.ExternalCallTimeout,
		OutboxMaxAttempts:           c.OutboxMaxAttempts,
		OutboxBatchSize:             c.OutboxBatchSize,
		OutboxParallelism:           c.OutboxParallelism,
		SweepBatchSize:              c.SweepBatchSize,
	}
}

// CronSpecs maps each sweep to its schedule.
func (c *AppConfig) CronSpecs() map[string]string {
	return map[string]string{
		app.SweepNoShow:          c.CronSpecNoShow,
		app.SweepReminders:       c.CronSpecReminders,
		app.SweepCompletion:      c.CronSpecCompletion,
		app.SweepEscrowRelease:   c.CronSpecEscrowRelease,
		app.SweepAutoPayout:      c.CronSpecAutoPayout,
		app.SweepPayoutReconcile: c.CronSpecPayoutReconcile,
		app.SweepNotifications:   c.CronSpecNotifications,
	}
}
