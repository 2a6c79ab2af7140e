// Package timeutil abstracts the clock behind sensor exchange deadlines and
// the presence poll loop so both can run against simulated time in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source. Deadlines are computed as Now().Add(d) and
// compared with the monotonic reading carried by the returned values.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks, dropping ticks for a slow reader.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

// NewTicker wraps time.NewTicker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return stdTicker{time.NewTicker(d)}
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// MockClock only moves when told to. Sleep calls are recorded; when
// autoAdvance is set they also move the clock, so a loop that polls until a
// deadline terminates after the simulated time has passed.
type MockClock struct {
	mu          sync.Mutex
	now         time.Time
	autoAdvance bool
	sleeps      []time.Duration
	tickers     []*MockTicker
}

// NewMockClock returns a clock frozen at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

// NewAutoClock returns a clock at start whose Sleep advances it.
func NewAutoClock(start time.Time) *MockClock {
	c := NewMockClock(start)
	c.autoAdvance = true
	return c
}

// SetAutoAdvance switches auto-advance on Sleep.
func (c *MockClock) SetAutoAdvance(on bool) {
	c.mu.Lock()
	c.autoAdvance = on
	c.mu.Unlock()
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records d and advances the clock by d if auto-advance is on.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	auto := c.autoAdvance
	c.mu.Unlock()
	if auto {
		c.Advance(d)
	}
}

// Sleeps returns a copy of every duration passed to Sleep.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Advance moves the clock forward and delivers due ticks.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.advanceTo(now)
	}
}

// NewTicker returns a MockTicker whose first tick is due one period from now.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{ch: make(chan time.Time, 1), period: d, due: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTicker ticks when its MockClock passes the next due time. Like
// time.Ticker it buffers one tick and drops the rest.
type MockTicker struct {
	ch     chan time.Time
	period time.Duration

	mu      sync.Mutex
	due     time.Time
	stopped bool
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Trigger delivers a tick immediately, independent of the clock.
func (t *MockTicker) Trigger(at time.Time) {
	t.send(at)
}

func (t *MockTicker) advanceTo(now time.Time) {
	t.mu.Lock()
	if t.stopped || now.Before(t.due) {
		t.mu.Unlock()
		return
	}
	for !now.Before(t.due) {
		t.due = t.due.Add(t.period)
	}
	t.mu.Unlock()
	t.send(now)
}

func (t *MockTicker) send(at time.Time) {
	select {
	case t.ch <- at:
	default:
	}
}
