// Package clock abstracts wall time so timer driven components can be
// driven by virtual time in tests.
package clock

import "time"

// Timer is a cancellable one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It reports false when the
	// timer already fired or was stopped.
	Stop() bool
}

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is backed by the time package.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
