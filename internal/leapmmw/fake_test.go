package leapmmw

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/presence.report/internal/timeutil"
)

var errFakeTimeout = errors.New("fake read timeout")

// reply renders lines the way the sensor sends them.
func reply(lines ...string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

// fakeTransport answers each framed command from a script. Commands without
// a script entry are answered by respond, or get no reply at all.
type fakeTransport struct {
	rx       []byte
	raw      bytes.Buffer
	writes   []string
	script   map[string]string
	respond  func(cmd string) string
	timeouts []time.Duration
	flushes  int

	writeErr   error
	flushErr   error
	shortWrite bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{script: map[string]string{}}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.raw.Write(p)
	cmd := strings.TrimSuffix(string(p), "\r\n")
	f.writes = append(f.writes, cmd)

	if r, ok := f.script[cmd]; ok {
		f.rx = append(f.rx, r...)
	} else if f.respond != nil {
		f.rx = append(f.rx, f.respond(cmd)...)
	}

	if f.shortWrite {
		return len(p) - 1, nil
	}
	return len(p), nil
}

func (f *fakeTransport) Flush() error {
	f.flushes++
	return f.flushErr
}

func (f *fakeTransport) Available() int { return len(f.rx) }

func (f *fakeTransport) ReadByte() (byte, error) {
	if len(f.rx) == 0 {
		return 0, errFakeTimeout
	}
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b, nil
}

func (f *fakeTransport) ReadBytesUntil(delim byte, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		b, err := f.ReadByte()
		if err != nil {
			return n, err
		}
		if b == delim {
			return n, nil
		}
		buf[n] = b
		n++
	}
	return n, nil
}

func (f *fakeTransport) SetTimeout(d time.Duration) {
	f.timeouts = append(f.timeouts, d)
}

// sensorModel answers like a healthy sensor with echo enabled, failing the
// commands listed in fail.
func sensorModel(fail ...string) func(string) string {
	failing := map[string]bool{}
	for _, c := range fail {
		failing[c] = true
	}
	return func(cmd string) string {
		if failing[cmd] {
			return reply(Prompt+cmd, TokenError)
		}
		return reply(Prompt+cmd, TokenDone)
	}
}

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, f *fakeTransport) (*Engine, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewAutoClock(testEpoch)
	return New(f, WithClock(clock), WithLogf(t.Logf)), clock
}

func newAutoClock() *timeutil.MockClock {
	return timeutil.NewAutoClock(testEpoch)
}
