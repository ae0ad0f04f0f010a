// Package obslog builds the process-wide zerolog logger, with a
// pretty console writer for interactive TTY use and compact JSON
// otherwise. Grounded on streamspace-dev-streamspace's
// api/internal/logger package, trimmed to this daemon's components.
package obslog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a root logger at the given level. pretty selects a
// human-readable console writer (appropriate when stderr is a TTY);
// otherwise structured JSON is emitted, one line per event.
func New(level string, pretty bool) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	var writer = os.Stderr
	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		logger = zerolog.New(writer).With().Timestamp().Logger()
	}
	return logger
}

// Component returns a child logger tagged with the owning component,
// the way every subsystem in this daemon identifies its log lines.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
