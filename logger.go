package histeq

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/histeq/internal/compute"
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
// SetLogger can be called concurrently with running pipelines.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for histeq and its compute platforms.
// By default, histeq produces no log output. Pass nil to restore silence.
//
// Log levels used by histeq:
//   - [slog.LevelDebug]: buffer sizes, dispatch geometry, state transitions
//   - [slog.LevelInfo]: device selection, run completion
//   - [slog.LevelWarn]: platform fallback, live buffers at close
//
// Example:
//
//	histeq.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	for _, p := range compute.Platforms() {
		propagateLogger(p, l)
	}
}

// Logger returns the current logger used by histeq.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by platforms that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a platform if it implements
// loggerSetter.
func propagateLogger(p compute.Platform, l *slog.Logger) {
	if ls, ok := p.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
