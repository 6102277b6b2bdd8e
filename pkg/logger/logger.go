// Package logger builds the zerolog root logger the rest of Compass
// derives its component loggers from.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the root logger.
type Config struct {
	Level  string // debug, info, warn, error; anything else falls back to info
	Pretty bool   // human-readable console output for dev mode
}

// New creates the root logger: JSON to stdout tagged with the service
// name, or pretty console output when requested. Caller annotation is
// only enabled alongside pretty output since it costs a runtime.Caller
// per event.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	ctx := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "compass")
	if cfg.Pretty {
		ctx = ctx.Caller()
	}

	return ctx.Logger()
}

// SetGlobalLogger replaces zerolog's package-level logger so anything
// logging through zerolog/log shares the root logger's output.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
