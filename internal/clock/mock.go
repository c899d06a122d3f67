package clock

import (
	"sync"
	"time"
)

// Mock is a manually advanced Clock for tests. Advance moves the current
// time forward and fires any timers whose deadline has passed.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

// NewMock returns a Mock starting at a fixed, arbitrary instant.
func NewMock() *Mock {
	return &Mock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// NewTimer creates a timer that fires when Advance crosses its deadline.
func (m *Mock) NewTimer(d time.Duration) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTimer{
		mock:     m,
		deadline: m.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		t.fired = true
		t.ch <- m.now
	} else {
		m.timers = append(m.timers, t)
	}
	return t
}

// Advance moves the clock forward and fires due timers.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now

	remaining := m.timers[:0]
	var due []*mockTimer
	for _, t := range m.timers {
		if !t.fired && !t.stopped && !t.deadline.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	m.timers = remaining
	m.mu.Unlock()

	for _, t := range due {
		t.fire(now)
	}
	// Give goroutines blocked on timer channels a chance to run.
	time.Sleep(time.Millisecond)
}

// Set jumps the clock to an absolute instant without firing timers.
// Useful for TTL boundary tests that care only about Now.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

type mockTimer struct {
	mock     *Mock
	deadline time.Time
	ch       chan time.Time
	fired    bool
	stopped  bool
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *mockTimer) fire(now time.Time) {
	t.mock.mu.Lock()
	if t.fired || t.stopped {
		t.mock.mu.Unlock()
		return
	}
	t.fired = true
	t.mock.mu.Unlock()
	t.ch <- now
}
