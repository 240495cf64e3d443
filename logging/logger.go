// Package logging provides structured logging for the synchronization
// engine and its collaborators, built on log/slog.
package logging

import (
	"context"
	"log/slog"
	"os"

	syncerrors "github.com/tembleque/usersync/errors"
)

// Logger wraps slog.Logger with a couple of engine-specific conveniences.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level       string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format      string `json:"format" yaml:"format"`           // text, json
	AddSource   bool   `json:"add_source" yaml:"add_source"`   // include file:line
	Environment string `json:"environment" yaml:"environment"` // dev, prod, test
}

// DefaultConfig is used whenever a caller does not supply one.
var DefaultConfig = Config{
	Level:       "info",
	Format:      "json",
	AddSource:   false,
	Environment: "dev",
}

var defaultLogger *Logger

// SyncErrorValue renders a *syncerrors.SyncError as a structured slog value
// instead of falling back to fmt.Sprintf on the whole struct.
type SyncErrorValue struct {
	*syncerrors.SyncError
}

func (e SyncErrorValue) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("operation", string(e.Op)),
		slog.String("component", e.Component),
		slog.String("code", string(e.Code)),
		slog.Bool("retryable", e.Retryable),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	if len(e.Metadata) > 0 {
		metaAttrs := make([]slog.Attr, 0, len(e.Metadata))
		for k, v := range e.Metadata {
			metaAttrs = append(metaAttrs, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Any("metadata", slog.GroupValue(metaAttrs...)))
	}
	return slog.GroupValue(attrs...)
}

// NewLogger builds a Logger from Config.
func NewLogger(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" || cfg.Environment == "dev" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Init sets the process-wide default logger.
func Init(cfg Config) {
	defaultLogger = NewLogger(cfg)
	slog.SetDefault(defaultLogger.Logger)
}

// Default returns the process-wide logger, initializing it with
// DefaultConfig on first use.
func Default() *Logger {
	if defaultLogger == nil {
		Init(DefaultConfig)
	}
	return defaultLogger
}

// WithComponent returns a child logger tagged with a component name, e.g.
// "engine", "remote-store", "coalescer".
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", component))}
}

// WithResource returns a child logger tagged with the resource being
// synchronized.
func (l *Logger) WithResource(resource string) *Logger {
	return &Logger{Logger: l.With(slog.String("resource", resource))}
}

// LogSyncError logs a *syncerrors.SyncError with structured fields, falling
// back to a plain error field for anything else.
func (l *Logger) LogSyncError(ctx context.Context, err error, msg string, attrs ...slog.Attr) {
	all := make([]any, 0, len(attrs)+1)
	if se, ok := err.(*syncerrors.SyncError); ok {
		all = append(all, slog.Any("sync_error", SyncErrorValue{SyncError: se}))
	} else if err != nil {
		all = append(all, slog.String("error", err.Error()))
	}
	for _, a := range attrs {
		all = append(all, a)
	}
	l.ErrorContext(ctx, msg, all...)
}

// Noop returns a Logger that discards everything, for tests and callers
// that never configured logging.
func Noop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
