// Package monitoring holds the process-wide diagnostic logger shared by the
// storage, transport and scheduling packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags every line with prefix and routes
// through the current Logf, so later SetLogger calls still take effect.
func Prefixed(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// Counter is a lock-free event counter used for rate-limited logging of
// repeated faults (e.g. one log line per N dropped telemetry sends).
type Counter struct {
	n atomic.Uint64
}

// Inc increments the counter and reports whether the new value is the first
// or a multiple of every.
func (c *Counter) Inc(every uint64) (uint64, bool) {
	v := c.n.Add(1)
	if every == 0 {
		return v, true
	}
	return v, v == 1 || v%every == 0
}

// Load returns the current count.
func (c *Counter) Load() uint64 { return c.n.Load() }
