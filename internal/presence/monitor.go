// Package presence polls the sensor for presence and records transitions.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = time.Second

// maxPending bounds the transitions held while the recorder is failing.
// The oldest are dropped first.
const maxPending = 1024

// Reader yields one presence reading per call.
type Reader interface {
	ReadPresence() (bool, error)
}

// Recorder persists presence transitions.
type Recorder interface {
	RecordPresence(e db.PresenceEvent) (string, error)
}

// Status is a point-in-time view of the monitor.
type Status struct {
	SessionID           string    `json:"session_id"`
	Known               bool      `json:"known"`
	Present             bool      `json:"present"`
	LastReading         time.Time `json:"last_reading,omitempty"`
	LastChange          time.Time `json:"last_change,omitempty"`
	Polls               int       `json:"polls"`
	Failures            int       `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	PendingEvents       int       `json:"pending_events"`
}

// Monitor polls a Reader and records every change of presence state,
// including the first successful reading.
type Monitor struct {
	reader    Reader
	recorder  Recorder
	clock     timeutil.Clock
	interval  time.Duration
	sessionID string

	// pollMu serializes Poll and guards pending.
	pollMu  sync.Mutex
	pending []db.PresenceEvent

	mu     sync.Mutex
	status Status
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the real clock.
func WithClock(c timeutil.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithInterval sets the poll period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(m *Monitor) { m.sessionID = id }
}

// NewMonitor creates a monitor. recorder may be nil.
func NewMonitor(reader Reader, recorder Recorder, opts ...Option) *Monitor {
	m := &Monitor{
		reader:    reader,
		recorder:  recorder,
		clock:     timeutil.RealClock{},
		interval:  DefaultInterval,
		sessionID: uuid.NewString(),
	}
	for _, o := range opts {
		o(m)
	}
	m.status.SessionID = m.sessionID
	return m
}

// SessionID identifies this run of the monitor.
func (m *Monitor) SessionID() string { return m.sessionID }

// Interval is the configured poll period.
func (m *Monitor) Interval() time.Duration { return m.interval }

// Status returns a copy of the current status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Poll takes one reading and records it when the state changed. A
// transition the recorder rejects stays queued and is retried, with its
// original timestamp, on the next poll.
func (m *Monitor) Poll() error {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	present, err := m.reader.ReadPresence()
	now := m.clock.Now()

	m.mu.Lock()
	m.status.Polls++
	if err != nil {
		m.status.Failures++
		m.status.ConsecutiveFailures++
		m.status.LastError = err.Error()
		first := m.status.ConsecutiveFailures == 1
		m.mu.Unlock()
		if first {
			monitoring.Logf("❌ presence read failed: %v", err)
		}
		return errors.Join(err, m.flush())
	}

	if m.status.ConsecutiveFailures > 0 {
		monitoring.Logf("presence reads recovered after %d failures", m.status.ConsecutiveFailures)
	}
	m.status.ConsecutiveFailures = 0
	m.status.LastError = ""
	m.status.LastReading = now
	changed := !m.status.Known || m.status.Present != present
	if changed {
		m.status.Known = true
		m.status.Present = present
		m.status.LastChange = now
	}
	m.mu.Unlock()

	if changed && m.recorder != nil {
		m.pending = append(m.pending, db.PresenceEvent{
			SessionID: m.sessionID,
			Present:   present,
			Timestamp: now,
		})
		if over := len(m.pending) - maxPending; over > 0 {
			monitoring.Logf("dropping %d unrecorded presence changes", over)
			m.pending = m.pending[over:]
		}
	}
	return m.flush()
}

// flush records queued transitions in order and stops at the first failure.
// Callers hold pollMu.
func (m *Monitor) flush() error {
	var err error
	for len(m.pending) > 0 {
		if _, err = m.recorder.RecordPresence(m.pending[0]); err != nil {
			break
		}
		m.pending = m.pending[1:]
	}

	m.mu.Lock()
	wasPending := m.status.PendingEvents
	m.status.PendingEvents = len(m.pending)
	m.mu.Unlock()

	switch {
	case err != nil && wasPending == 0:
		monitoring.Logf("failed to record presence change: %v", err)
	case err == nil && wasPending > 0:
		monitoring.Logf("recorded %d delayed presence changes", wasPending)
	}
	return err
}

// Run polls on every tick until ctx is cancelled. Poll errors are tracked
// in Status and do not stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	monitoring.Logf("presence monitor started: session=%s interval=%v", m.sessionID, m.interval)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("presence monitor stopped")
			return ctx.Err()
		case <-ticker.C():
			_ = m.Poll()
		}
	}
}
