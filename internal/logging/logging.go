// Package logging builds the zerolog loggers handed to every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the root logger.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Console renders human-readable output instead of JSON lines.
	Console bool
	// Out defaults to os.Stderr.
	Out io.Writer
}

// ParseLevel maps a level name to a zerolog.Level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New returns the root logger.
func New(opt Options) zerolog.Logger {
	out := opt.Out
	if out == nil {
		out = os.Stderr
	}
	if opt.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(ParseLevel(opt.Level)).With().Timestamp().Logger()
}

// Component derives a logger tagged with component=name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
