// Package clock abstracts wall-clock time so the batcher's debounce
// scheduling, cache TTLs, and rate-limit windows are testable without
// real waits.
package clock

import "time"

// Clock supplies the current time and delay-based timers.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer the resilience layer uses.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// New returns a Clock backed by the real time package.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }
