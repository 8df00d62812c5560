// Package logging wraps log/slog with a console handler, component scoping
// and an audit record for every firewall mutation.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level represents log severity levels.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	defaultLogger *Logger
	once          sync.Once
)

// Logger is a slog.Logger whose level can change after construction.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// Config holds logger configuration.
type Config struct {
	Level  Level
	Output io.Writer
	JSON   bool
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// New creates a Logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(cfg.Level)
	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = NewConsoleHandler(cfg.Output, opts)
	}
	return &Logger{Logger: slog.New(handler), level: levelVar}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(Config{Level: LevelError + 4, Output: io.Discard})
}

// Default returns the process logger.
func Default() *Logger {
	once.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(DefaultConfig())
		}
	})
	return defaultLogger
}

// SetDefault replaces the process logger.
func SetDefault(l *Logger) {
	once.Do(func() {})
	defaultLogger = l
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level.
// The empty string is info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// WithComponent scopes the logger to a package such as "edge" or "firewall".
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithRun tags every record with the reconciliation run.
func (l *Logger) WithRun(runID, backend string) *Logger {
	return l.with("run_id", runID, "backend", backend)
}

// Audit records a firewall mutation. kind is the transaction kind and
// target the table or chain it touched.
func (l *Logger) Audit(kind, target string, details ...any) {
	args := append([]any{"audit", true, "kind", kind, "target", target}, details...)
	l.Info("AUDIT", args...)
}

// WithComponent returns a component-scoped default logger.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}
