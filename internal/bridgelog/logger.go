// Package bridgelog provides the small structured-logging interface every
// bridge component logs through, so none of them import log/slog directly
// or call fmt.Println/log.Fatal outside of a command's main.
package bridgelog

import (
	"log/slog"
	"os"
)

// Logger is the leveled, structured logging surface components depend on.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// slogLogger is the default Logger, backed by the standard library's
// structured logger.
type slogLogger struct {
	base *slog.Logger
}

// New returns a Logger that writes structured, leveled records to stderr
// under the given component name.
func New(component string) Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &slogLogger{base: slog.New(handler).With("component", component)}
}

func (l *slogLogger) Debug(msg string, kv ...any) { l.base.Debug(msg, kv...) }
func (l *slogLogger) Info(msg string, kv ...any)  { l.base.Info(msg, kv...) }
func (l *slogLogger) Warn(msg string, kv ...any)  { l.base.Warn(msg, kv...) }
func (l *slogLogger) Error(msg string, kv ...any) { l.base.Error(msg, kv...) }

// Nop is a Logger that discards everything, used by tests and anywhere a
// caller does not want to configure logging.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
