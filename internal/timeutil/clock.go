// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts the time operations the acquisition pipeline depends
// on: timestamps, pauses, and periodic ticks. Production code uses
// RealClock; tests swap in MockClock to make settle delays and retry
// pauses immediate and observable.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock passes everything through to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// mockTimer is one pending event on the mock timeline: a one-shot
// waiter from After, or a repeating tick when period is non-zero.
type mockTimer struct {
	ch      chan time.Time
	when    time.Time
	period  time.Duration
	stopped bool
}

// fire delivers now without blocking; a full channel drops the tick the
// way time.Ticker does.
func (t *mockTimer) fire(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}

// MockClock is a manually driven clock. Sleep returns immediately,
// recording the requested duration and moving the timeline; Advance
// moves the timeline and fires whatever has come due.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	timers []*mockTimer
}

// NewMockClock returns a MockClock with its timeline set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records the requested duration and moves the timeline by it,
// without blocking.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

// Sleeps returns every duration passed to Sleep so far.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// After returns a channel that fires once Advance has carried the
// timeline past the deadline.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{ch: make(chan time.Time, 1), when: c.now.Add(d)}
	c.timers = append(c.timers, t)
	return t.ch
}

// NewTicker returns a ticker that fires from Advance, once per call at
// most, then re-arms one period out.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{ch: make(chan time.Time, 1), when: c.now.Add(d), period: d}
	c.timers = append(c.timers, t)
	return &MockTicker{clock: c, timer: t}
}

// Advance moves the timeline forward and fires every due timer.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		if t.stopped || c.now.Before(t.when) {
			continue
		}
		t.fire(c.now)
		if t.period > 0 {
			t.when = c.now.Add(t.period)
		} else {
			t.stopped = true
		}
	}
}

// MockTicker drives one repeating timer on a MockClock.
type MockTicker struct {
	clock *MockClock
	timer *mockTimer
}

func (t *MockTicker) C() <-chan time.Time { return t.timer.ch }

func (t *MockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.timer.stopped = true
}

// Trigger delivers a tick carrying the given time, without moving the
// clock.
func (t *MockTicker) Trigger(now time.Time) {
	t.timer.fire(now)
}
