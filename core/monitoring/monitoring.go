// Package monitoring routes unexpected failures of background work (timer
// fires, chain calls, MQTT publishes) to an error tracker.
package monitoring

import (
	"runtime/debug"
	"time"

	"github.com/kilianp07/dobi/core/logger"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any)                          {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	current Monitor       = NopMonitor{}
	log     logger.Logger = logger.Nop{}
)

// Init sets the global monitor implementation. A nil monitor is ignored.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// SetLogger sets the logger recovered panics are written to. A nil logger
// discards them.
func SetLogger(l logger.Logger) {
	log = logger.OrNop(l)
}

// Capture reports err tagged with the module name and optional key/value
// pairs. An odd trailing key is dropped.
func Capture(err error, module string, kv ...string) {
	if err == nil {
		return
	}
	tags := map[string]string{"module": module}
	for i := 0; i+1 < len(kv); i += 2 {
		tags[kv[i]] = kv[i+1]
	}
	CaptureException(err, tags)
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if current != nil {
		current.CaptureException(err, tags)
	}
}

// Recover logs and reports a panic of a timer callback and lets the process
// carry on. It must be deferred directly.
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	log.Errorf("recovered panic: %v\n%s", r, debug.Stack())
	if current != nil {
		current.CapturePanic(r)
	}
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	if current != nil {
		current.Flush(d)
	}
}
