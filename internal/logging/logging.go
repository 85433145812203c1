// Package logging configures zerolog for the client.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects level, format and destination.
type Options struct {
	Level  string
	Format string
	// File receives log output. Empty means stderr.
	File string
}

// Setup builds the application logger, installs it as the global zerolog
// logger and returns it with a function that closes the log file.
func Setup(opts Options) (zerolog.Logger, func() error, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	}

	logger := New(out, opts.Format, level)
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
	return logger, closeFn, nil
}

// New creates a logger writing to w. Format "json" writes JSON lines;
// anything else uses the console writer without colors.
func New(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
