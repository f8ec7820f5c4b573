// Package logging gives every preflight package a component-scoped logger
// behind one small interface.
package logging

// file: internal/logging/logger.go

import (
	"context"
)

// Logger is what preflight packages log through. Arguments after the
// message are slog-style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// WithContext binds ctx so handlers can read values from it.
	WithContext(ctx context.Context) Logger

	// WithField returns a child logger that adds key=value to every record.
	WithField(key string, value any) Logger
}

// NoopLogger discards everything. Tests and collaborators built without a
// logger get this one.
type NoopLogger struct{}

func (l *NoopLogger) Debug(_ string, _ ...any)             {}
func (l *NoopLogger) Info(_ string, _ ...any)              {}
func (l *NoopLogger) Warn(_ string, _ ...any)              {}
func (l *NoopLogger) Error(_ string, _ ...any)             {}
func (l *NoopLogger) WithContext(_ context.Context) Logger { return l }
func (l *NoopLogger) WithField(_ string, _ any) Logger     { return l }

var noop = &NoopLogger{}

// GetNoopLogger returns the shared discarding logger.
func GetNoopLogger() Logger {
	return noop
}

// defaultLogger is replaced by InitLogging / SetupDefaultLogger.
var defaultLogger = GetNoopLogger()

// SetDefaultLogger installs logger as the root for GetLogger. nil is ignored.
func SetDefaultLogger(logger Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// GetLogger returns the root logger tagged with component=name.
func GetLogger(name string) Logger {
	return defaultLogger.WithField("component", name)
}

// OrNoop returns logger, or the no-op logger when logger is nil.
func OrNoop(logger Logger) Logger {
	if logger == nil {
		return noop
	}
	return logger
}
