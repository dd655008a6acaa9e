package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

// Levels above slog.LevelError
const (
	LevelCritical = slog.Level(12)
	LevelFatal    = slog.Level(16)
)

// DefaultLogger implements smpp.Logger on top of log/slog
type DefaultLogger struct {
	logger *slog.Logger
	exit   func(int)
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	case "fatal":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch {
	case level >= LevelFatal:
		a.Value = slog.StringValue("FATAL")
	case level >= LevelCritical:
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}

// New creates a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *DefaultLogger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &DefaultLogger{
		logger: slog.New(handler),
		exit:   os.Exit,
	}
}

// NewDefaultLogger creates a text logger on stdout
func NewDefaultLogger(level string) *DefaultLogger {
	return New(os.Stdout, level, "text")
}

// Slog exposes the underlying slog.Logger.
func (l *DefaultLogger) Slog() *slog.Logger {
	return l.logger
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, fields...)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, fields...)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, fields...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelError, msg, fields...)
}

// Critical logs a condition worse than an error that the process survives
func (l *DefaultLogger) Critical(msg string, fields ...interface{}) {
	l.logger.Log(context.Background(), LevelCritical, msg, fields...)
}

// Fatal logs a fatal message and exits
func (l *DefaultLogger) Fatal(msg string, fields ...interface{}) {
	l.logger.Log(context.Background(), LevelFatal, msg, fields...)
	l.exit(1)
}

// WithFields returns a logger with additional fields
func (l *DefaultLogger) WithFields(fields map[string]interface{}) smpp.Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}

	return &DefaultLogger{
		logger: l.logger.With(args...),
		exit:   l.exit,
	}
}
