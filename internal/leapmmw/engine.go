package leapmmw

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

// Engine runs command exchanges against a single sensor.
//
// An Engine assumes exclusive use of its transport and is not safe for
// concurrent use; callers serialize access (radar.Radar does).
type Engine struct {
	transport Transport
	clock     timeutil.Clock
	log       monitoring.LogfFunc

	timeout         time.Duration
	presenceTimeout time.Duration

	state State
	mode  Mode
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for deadlines and delays.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogf attaches a diagnostic sink. Without one, monitoring.Logf is used.
func WithLogf(f monitoring.LogfFunc) Option {
	return func(e *Engine) { e.log = f }
}

// WithTimeout sets the deadline applied to each command exchange.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithPresenceTimeout sets the bound on the status read after getOutput.
func WithPresenceTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.presenceTimeout = d
		}
	}
}

// New returns an Engine using t. t may be nil and attached later with
// SetTransport. The sensor is assumed to be running in immediate mode, which
// is its power-on state.
func New(t Transport, opts ...Option) *Engine {
	e := &Engine{
		transport:       t,
		clock:           timeutil.RealClock{},
		timeout:         DefaultCommandTimeout,
		presenceTimeout: DefaultPresenceTimeout,
		state:           Running,
		mode:            Immediate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTransport replaces the transport.
func (e *Engine) SetTransport(t Transport) {
	e.transport = t
}

// Ready reports whether a transport is attached.
func (e *Engine) Ready() bool {
	return e.transport != nil
}

// Timeout returns the per-exchange deadline.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

func (e *Engine) logf(format string, v ...interface{}) {
	if e.log != nil {
		e.log(format, v...)
		return
	}
	monitoring.Logf(format, v...)
}

// writeCommand discards stale input and writes command framed with CRLF.
func (e *Engine) writeCommand(command string) error {
	if e.transport == nil {
		return ErrNotReady
	}
	if command == "" || strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("%w: command %q", ErrInvalidArgument, command)
	}

	e.transport.SetTimeout(e.timeout)

	for e.transport.Available() > 0 {
		if _, err := e.transport.ReadByte(); err != nil {
			break
		}
	}

	frame := make([]byte, 0, len(command)+2)
	frame = append(frame, command...)
	frame = append(frame, '\r', '\n')

	n, err := e.transport.Write(frame)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrWriteFailed, command, err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w %q: wrote %d of %d bytes", ErrWriteFailed, command, n, len(frame))
	}
	if err := e.transport.Flush(); err != nil {
		return fmt.Errorf("%w %q: flush: %w", ErrWriteFailed, command, err)
	}
	return nil
}

// SendCommand sends command and waits for "Done".
func (e *Engine) SendCommand(command string) error {
	return e.sendCommand(command, "")
}

// SendCommandAccepting is SendCommand where a line starting with alternate
// makes the exchange succeed even if "Error" follows it.
func (e *Engine) SendCommandAccepting(command, alternate string) error {
	return e.sendCommand(command, alternate)
}

func (e *Engine) sendCommand(command, alternate string) error {
	if err := e.writeCommand(command); err != nil {
		return err
	}

	c := newClassifier(command, alternate)
	deadline := e.clock.Now().Add(e.timeout)
	buf := make([]byte, lineCapacity)
	accepted := false

	for {
		line, ok := e.nextLine(deadline, buf)
		if !ok {
			break
		}

		switch c.classify(line) {
		case classAlternate:
			// The terminal token still follows; keep reading so it is consumed.
			accepted = true
		case classDone:
			return nil
		case classError:
			if accepted {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrCommandFailed, command)
		}
	}

	if accepted {
		e.logf("leapmmw: %q: accepted %q without terminal token", command, alternate)
		return nil
	}
	e.logf("leapmmw: %q: no response within %v", command, e.timeout)
	return fmt.Errorf("%w: %s", ErrTimeout, command)
}
