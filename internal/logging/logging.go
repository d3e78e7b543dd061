// Package logging provides the structured logger used across the engine.
// All components log through zerolog; this package only wires global
// defaults and a small pair of helpers that carry a logger in a context.
package logging

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the root logger is constructed.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console-writer output instead of JSON
	Component  string
}

var defaultLogger = New(Config{Level: "info", Component: "signalengine"})

// New builds a zerolog.Logger scoped to a component.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out zerolog.ConsoleWriter
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(out).Level(level).With().Timestamp().Str("component", cfg.Component).Logger()
	}

	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("component", cfg.Component).Logger()
}

// SetDefault replaces the package-level default logger.
func SetDefault(l zerolog.Logger) { defaultLogger = l }

// Default returns the package-level default logger.
func Default() zerolog.Logger { return defaultLogger }

type ctxKey string

const loggerCtxKey ctxKey = "logger"

// WithContext attaches a logger to ctx so downstream calls can recover it.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, l)
}

// FromContext recovers a logger previously attached with WithContext,
// falling back to the package default.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerCtxKey).(zerolog.Logger); ok {
		return l
	}
	return defaultLogger
}
