package serialport

import (
	"errors"
	"sync"
	"time"
)

// errPortClosed is returned by a closed TestableSerialPort.
var errPortClosed = errors.New("serial port closed")

// TestableSerialPort is an in-memory SerialPorter. Bytes queued with
// AddReadData, or produced by OnWrite in reply to a write, are returned by
// Read; an empty port behaves like a UART with a 1ms read timeout.
type TestableSerialPort struct {
	mu      sync.Mutex
	pending []byte
	written []byte

	// OnWrite answers a written chunk the way the device would.
	OnWrite func(p []byte) []byte

	// ReadError fails the next Read once.
	ReadError error
	// ShortWrite makes Write report one byte fewer than given.
	ShortWrite bool

	Closed      bool
	WriteCalls  int
	DrainCalls  int
	ReadTimeout time.Duration
}

// NewTestableSerialPort returns an empty, open port.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{}
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	for attempt := 0; ; attempt++ {
		t.mu.Lock()
		switch {
		case t.Closed:
			t.mu.Unlock()
			return 0, errPortClosed
		case t.ReadError != nil:
			err := t.ReadError
			t.ReadError = nil
			t.mu.Unlock()
			return 0, err
		case len(t.pending) > 0:
			n := copy(p, t.pending)
			t.pending = t.pending[n:]
			t.mu.Unlock()
			return n, nil
		}
		t.mu.Unlock()

		if attempt > 0 {
			return 0, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++
	if t.Closed {
		return 0, errPortClosed
	}
	t.written = append(t.written, p...)
	if t.OnWrite != nil {
		t.pending = append(t.pending, t.OnWrite(append([]byte(nil), p...))...)
	}
	if t.ShortWrite && len(p) > 0 {
		return len(p) - 1, nil
	}
	return len(p), nil
}

// Drain counts calls; nothing is ever queued.
func (t *TestableSerialPort) Drain() error {
	t.mu.Lock()
	t.DrainCalls++
	t.mu.Unlock()
	return nil
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	t.Closed = true
	t.mu.Unlock()
	return nil
}

// SetReadTimeout records the timeout the stream asked for.
func (t *TestableSerialPort) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	t.ReadTimeout = d
	t.mu.Unlock()
	return nil
}

// AddReadData queues bytes as if the device had sent them.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	t.pending = append(t.pending, data...)
	t.mu.Unlock()
}

// GetWrittenData returns everything written so far.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.written...)
}
