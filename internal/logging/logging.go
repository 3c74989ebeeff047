// Package logging builds the structured zerolog logger shared by every
// component, following the teacher's monitoring/logger.go.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the logger.
type Options struct {
	Level  string // debug|info|warn|error|fatal
	Format string // json|pretty
}

// New constructs a zerolog.Logger writing to stdout.
func New(opts Options) zerolog.Logger {
	var out io.Writer = os.Stdout
	if opts.Format == "pretty" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	return zerolog.New(out).With().Timestamp().Logger()
}
