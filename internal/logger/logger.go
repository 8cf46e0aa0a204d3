// Package logger builds zerolog loggers from configuration.
//
// Loggers are constructed once and threaded through component constructors;
// nothing in this package mutates zerolog's global state, so two jobs in the
// same process cannot observe each other's log settings.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdfscribe/internal/config"
)

// New builds a logger from the logging config. When filePath is non-empty
// the logger tees into that file in addition to stderr; the file gets plain
// JSON regardless of the console format so job logs stay machine-readable.
func New(cfg config.Logging, filePath string) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var console io.Writer = os.Stderr
	if strings.ToLower(cfg.Format) != "json" {
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	writers := []io.Writer{console}
	closeFn := func() {}

	if cfg.WriteToFile && filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("opening log file %s: %w", filePath, err)
		}
		writers = append(writers, file)
		closeFn = func() { _ = file.Close() }
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return log, closeFn, nil
}

// WithComponent tags a logger with a component field.
func WithComponent(log zerolog.Logger, component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
