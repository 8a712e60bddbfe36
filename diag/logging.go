package diag

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Logger is the leveled logging interface every core component takes
// instead of writing to stdout/stderr directly. Recoverable conditions —
// capacity exceeded, invalid handle, missing texture — are reported
// through Warnf/Errorf and never escalate to a panic; calls that cannot
// complete (a full mesh or material pool) also return an error.
type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger writes Debug/Info to stdout and Warn/Error to stderr,
// guarded by a mutex since loggers are sometimes shared with asset-loading
// goroutines even though the engine itself is driven from one CPU thread.
type DefaultLogger struct {
	mu     sync.Mutex
	debug  bool
	prefix string
	out    *log.Logger
	err    *log.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		debug:  debug,
		prefix: prefix,
		out:    log.New(os.Stdout, "", flags),
		err:    log.New(os.Stderr, "", flags),
	}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

func (l *DefaultLogger) prefixf(level string, format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s: %s", l.prefix, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	l.mu.Lock()
	dbg := l.debug
	l.mu.Unlock()
	if !dbg {
		return
	}
	l.out.Print(l.prefixf("DEBUG", format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Print(l.prefixf("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.err.Print(l.prefixf("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Print(l.prefixf("ERROR", format, args...))
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything. Used as the
// Engine's default so callers never have to nil-check.
func NewNopLogger() Logger { return &nopLogger{} }

func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)              {}
func (n *nopLogger) Debugf(format string, args ...any)  {}
func (n *nopLogger) Infof(format string, args ...any)   {}
func (n *nopLogger) Warnf(format string, args ...any)   {}
func (n *nopLogger) Errorf(format string, args ...any)  {}

// OnceWarner latches a warning so a capacity overflow that persists across
// many frames logs once per episode instead of once per frame. Reset
// clears the latch once occupancy drops back under the cap so a later
// recurrence warns again.
type OnceWarner struct {
	warned bool
}

func (w *OnceWarner) Warn(log Logger, format string, args ...any) {
	if w.warned {
		return
	}
	w.warned = true
	log.Warnf(format, args...)
}

func (w *OnceWarner) Reset() { w.warned = false }

// Warned reports whether the latch has already fired since the last Reset.
func (w *OnceWarner) Warned() bool { return w.warned }
