package texquad

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/texquad/capture"
	"github.com/gogpu/texquad/internal/gpu"
	"github.com/gogpu/texquad/internal/platform"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for texquad and all its sub-packages.
// By default texquad produces no log output. Pass nil to restore silence.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame diagnostics (skipped frames, submissions)
//   - [slog.LevelInfo]: lifecycle events (adapter selected, capture finished)
//   - [slog.LevelWarn]: non-fatal issues (frame errors, capture failures)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	gpu.SetLogger(l)
	capture.SetLogger(l)
	platform.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
