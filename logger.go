package toys

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// live holds the drivers of open sessions so SetLogger can reach them.
var (
	liveMu sync.Mutex
	live   = make(map[any]int)
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for toys and the drivers of every open
// session. By default, toys produces no log output.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by toys:
//   - [slog.LevelDebug]: dispatch details, buffer sizes, uploads
//   - [slog.LevelInfo]: lifecycle events (device selected, kernel compiled)
//   - [slog.LevelWarn]: non-fatal issues (release errors)
//
// Example:
//
//	toys.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.Lock()
	defer liveMu.Unlock()
	for b := range live {
		propagateLogger(b, l)
	}
}

// Logger returns the current logger used by toys.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by drivers that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a driver if it implements the
// loggerSetter interface.
func propagateLogger(b any, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

// trackDriver registers b for logger propagation and hands it the current
// logger. Sessions sharing a driver are reference counted.
func trackDriver(b any) {
	liveMu.Lock()
	live[b]++
	liveMu.Unlock()
	propagateLogger(b, Logger())
}

func untrackDriver(b any) {
	liveMu.Lock()
	defer liveMu.Unlock()
	if live[b]--; live[b] <= 0 {
		delete(live, b)
	}
}
