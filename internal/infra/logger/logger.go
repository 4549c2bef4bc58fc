package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/infra/config"
)

// Log is the process-wide logger. Services receive entries derived from it.
var Log = logrus.New()

const (
	jsonTimestamp = "2006-01-02T15:04:05.000Z07:00"
	textTimestamp = "2006-01-02 15:04:05"
)

// Init configures Log from the application config and writes to stdout.
func Init(cfg *config.AppConfig) {
	Configure(Log, os.Stdout, cfg.LogLevel, cfg.Environment)
	Log.WithField("level", Log.GetLevel().String()).Debug("Logger configured")
}

// Configure applies level and formatter to l. Deployed environments get
// JSON lines; everything else gets human-readable text. An unknown level
// falls back to info.
func Configure(l *logrus.Logger, out io.Writer, level, environment string) {
	l.SetOutput(out)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		l.SetLevel(logrus.InfoLevel)
		l.WithError(err).Warnf("Invalid log level %q, using info", level)
	} else {
		l.SetLevel(parsed)
	}

	switch environment {
	case "production", "staging":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: jsonTimestamp})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: textTimestamp})
	}
}

// Component returns an entry tagged with the service name and environment.
func Component(cfg *config.AppConfig, service string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"service": service,
		"env":     cfg.Environment,
	})
}
