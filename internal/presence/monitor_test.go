package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type reading struct {
	present bool
	err     error
}

// scriptedReader returns readings in order, then repeats the last one.
type scriptedReader struct {
	mu       sync.Mutex
	readings []reading
	calls    int
}

func (r *scriptedReader) ReadPresence() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := min(r.calls, len(r.readings)-1)
	r.calls++
	return r.readings[i].present, r.readings[i].err
}

func (r *scriptedReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type memRecorder struct {
	mu     sync.Mutex
	events []db.PresenceEvent
	err    error
}

func (m *memRecorder) RecordPresence(e db.PresenceEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.events = append(m.events, e)
	return "id", nil
}

func (m *memRecorder) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memRecorder) Events() []db.PresenceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]db.PresenceEvent(nil), m.events...)
}

func TestMonitor_RecordsTransitionsOnly(t *testing.T) {
	errRead := errors.New("timeout")
	reader := &scriptedReader{readings: []reading{
		{present: false},
		{present: false},
		{present: true},
		{err: errRead},
		{present: true},
		{present: false},
	}}
	rec := &memRecorder{}
	clock := timeutil.NewMockClock(testEpoch)
	m := NewMonitor(reader, rec, WithClock(clock), WithSessionID("s1"))

	for i := 0; i < 6; i++ {
		clock.Advance(time.Second)
		err := m.Poll()
		if i == 3 {
			assert.ErrorIs(t, err, errRead)
		} else {
			assert.NoError(t, err)
		}
	}

	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []bool{false, true, false}, []bool{events[0].Present, events[1].Present, events[2].Present})
	assert.Equal(t, testEpoch.Add(3*time.Second), events[1].Timestamp)
	for _, e := range events {
		assert.Equal(t, "s1", e.SessionID)
	}

	st := m.Status()
	assert.Equal(t, 6, st.Polls)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Empty(t, st.LastError)
	assert.True(t, st.Known)
	assert.False(t, st.Present)
	assert.Equal(t, testEpoch.Add(6*time.Second), st.LastChange)
}

func TestMonitor_FailuresTracked(t *testing.T) {
	reader := &scriptedReader{readings: []reading{{err: errors.New("no response")}}}
	m := NewMonitor(reader, nil, WithClock(timeutil.NewMockClock(testEpoch)))

	for i := 0; i < 3; i++ {
		assert.Error(t, m.Poll())
	}
	st := m.Status()
	assert.Equal(t, 3, st.ConsecutiveFailures)
	assert.Equal(t, "no response", st.LastError)
	assert.False(t, st.Known)
}

func TestMonitor_RecorderError(t *testing.T) {
	reader := &scriptedReader{readings: []reading{{present: true}}}
	rec := &memRecorder{err: errors.New("disk full")}
	m := NewMonitor(reader, rec, WithClock(timeutil.NewMockClock(testEpoch)))

	assert.EqualError(t, m.Poll(), "disk full")
	assert.True(t, m.Status().Present)
	assert.Equal(t, 1, m.Status().PendingEvents)
}

func TestMonitor_RetriesUnrecordedTransitions(t *testing.T) {
	tests := []struct {
		name     string
		readings []reading
		failing  int
		want     []bool
	}{
		{
			name:     "single transition retried",
			readings: []reading{{present: true}, {present: true}, {present: true}},
			failing:  1,
			want:     []bool{true},
		},
		{
			name:     "transitions queued in order",
			readings: []reading{{present: true}, {present: false}, {present: false}},
			failing:  2,
			want:     []bool{true, false},
		},
		{
			name:     "retried after a read failure",
			readings: []reading{{present: true}, {err: errors.New("timeout")}, {present: true}},
			failing:  1,
			want:     []bool{true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &scriptedReader{readings: tt.readings}
			rec := &memRecorder{err: errors.New("db busy")}
			clock := timeutil.NewMockClock(testEpoch)
			m := NewMonitor(reader, rec, WithClock(clock))

			for i := range tt.readings {
				if i == tt.failing {
					rec.setErr(nil)
				}
				clock.Advance(time.Second)
				_ = m.Poll()
			}

			events := rec.Events()
			require.Len(t, events, len(tt.want))
			for i, e := range events {
				assert.Equal(t, tt.want[i], e.Present)
				assert.Equal(t, testEpoch.Add(time.Duration(i+1)*time.Second), e.Timestamp)
			}
			assert.Zero(t, m.Status().PendingEvents)
		})
	}
}

func TestMonitor_Defaults(t *testing.T) {
	m := NewMonitor(&scriptedReader{readings: []reading{{}}}, nil, WithInterval(0))
	assert.Equal(t, DefaultInterval, m.Interval())
	assert.Len(t, m.SessionID(), 36)
	assert.Equal(t, m.SessionID(), m.Status().SessionID)

	other := NewMonitor(&scriptedReader{readings: []reading{{}}}, nil)
	assert.NotEqual(t, m.SessionID(), other.SessionID())
}

func TestMonitor_Run(t *testing.T) {
	reader := &scriptedReader{readings: []reading{{present: true}}}
	rec := &memRecorder{}
	clock := timeutil.NewMockClock(testEpoch)
	m := NewMonitor(reader, rec, WithClock(clock), WithInterval(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Advance until the loop has consumed a few ticks. The ticker channel
	// buffers one tick, so each advance is delivered once the loop is waiting.
	deadline := time.Now().Add(2 * time.Second)
	for reader.Calls() < 3 && time.Now().Before(deadline) {
		clock.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, reader.Calls(), 3)
	assert.Len(t, rec.Events(), 1)
}
