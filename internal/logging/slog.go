package logging

// file: internal/logging/slog.go

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level mirrors slog levels so callers do not import log/slog directly.
type Level = slog.Level

// Supported levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// levelVar is shared by every handler created here so SetLevel applies live.
var levelVar = new(slog.LevelVar)

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	l   *slog.Logger
	ctx context.Context
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.DebugContext(s.context(), msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.InfoContext(s.context(), msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.WarnContext(s.context(), msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.ErrorContext(s.context(), msg, args...) }

func (s *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{l: s.l, ctx: ctx}
}

func (s *slogLogger) WithField(key string, value any) Logger {
	return &slogLogger{l: s.l.With(key, value), ctx: s.ctx}
}

func (s *slogLogger) context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// NewSlogLogger wraps an existing slog logger.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

// InitLogging installs a JSON logger writing to w as the default logger.
func InitLogging(level Level, w io.Writer) {
	levelVar.Set(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar})
	SetDefaultLogger(NewSlogLogger(slog.New(h)))
}

// InitTextLogging installs a human-readable logger writing to w.
func InitTextLogging(level Level, w io.Writer) {
	levelVar.Set(level)
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar})
	SetDefaultLogger(NewSlogLogger(slog.New(h)))
}

// SetupDefaultLogger configures stderr logging from a level name
// ("debug", "info", "warn", "error"). Unknown names mean info.
func SetupDefaultLogger(level string) {
	InitTextLogging(ParseLevel(level), os.Stderr)
}

// ParseLevel converts a level name to a Level.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel changes the level of every logger created by this package.
func SetLevel(level Level) {
	levelVar.Set(level)
}

// IsDebugEnabled reports whether debug messages are currently emitted.
func IsDebugEnabled() bool {
	return levelVar.Level() <= LevelDebug
}
