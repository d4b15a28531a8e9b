package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger shared by every engine package.
// The engine is silent until SetLogger is called; passing nil restores the silent logger.
//
// Levels in use:
//   - slog.LevelDebug: per-dispatch diagnostics (workgroup counts, buffer sizes)
//   - slog.LevelInfo: lifecycle events (device created, worker pool started)
//   - slog.LevelWarn: recoverable host-side problems (GPU unavailable, stale inputs)
//
// Parameters:
//   - l: the logger to install, or nil
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger installed with SetLogger. Safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
