package serialport

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrWriteFailed is returned when the port accepts fewer bytes than requested.
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrReadTimeout is returned when no byte arrives within the stream timeout.
	ErrReadTimeout = errors.New("serial read timed out")
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("serial stream closed")
)

// DefaultStreamTimeout bounds blocking reads until SetTimeout is called.
const DefaultStreamTimeout = time.Second

// Stream wraps a serial port with a receive buffer that is filled by a
// background goroutine, the way a UART driver fills its RX ring
// independently of the code consuming it. It offers non-blocking
// availability, timeout-bounded byte and line reads, and write+flush.
//
// A Stream has a single consumer; only the background reader and that
// consumer touch the buffer.
type Stream struct {
	port SerialPorter

	mu      sync.Mutex
	rx      bytes.Buffer
	readErr error
	timeout time.Duration

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStream starts buffering input from port.
func NewStream(port SerialPorter) *Stream {
	s := &Stream{
		port:    port,
		timeout: DefaultStreamTimeout,
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.pump()
	return s
}

func (s *Stream) pump() {
	defer s.wg.Done()
	chunk := make([]byte, 256)
	for {
		n, err := s.port.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.rx.Write(chunk[:n])
			s.mu.Unlock()
			s.notify()
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			s.notify()
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *Stream) notify() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Available returns the number of buffered bytes that can be read without blocking.
func (s *Stream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Len()
}

// SetTimeout sets the bound applied to ReadByte and ReadBytesUntil.
func (s *Stream) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// ReadByte returns the next buffered byte, waiting up to the stream timeout
// for one to arrive.
func (s *Stream) ReadByte() (byte, error) {
	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()
	return s.readByte(time.Now().Add(timeout))
}

func (s *Stream) readByte(deadline time.Time) (byte, error) {
	for {
		s.mu.Lock()
		if s.rx.Len() > 0 {
			b, _ := s.rx.ReadByte()
			s.mu.Unlock()
			return b, nil
		}
		readErr := s.readErr
		s.mu.Unlock()

		if readErr != nil {
			return 0, readErr
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrReadTimeout
		}

		timer := time.NewTimer(remaining)
		select {
		case <-s.ready:
			timer.Stop()
		case <-timer.C:
		case <-s.done:
			timer.Stop()
			return 0, ErrClosed
		}
	}
}

// ReadBytesUntil copies bytes into buf until delim is read, buf is full, or
// the stream timeout elapses. The delimiter is consumed but not stored. The
// returned error is non-nil only when the read stopped early on a timeout or
// port error; n counts the bytes stored either way.
func (s *Stream) ReadBytesUntil(delim byte, buf []byte) (int, error) {
	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	n := 0
	for n < len(buf) {
		b, err := s.readByte(deadline)
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

// Discard drops everything currently buffered and returns the byte count.
func (s *Stream) Discard() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.rx.Len()
	s.rx.Reset()
	return n
}

// Write sends p to the port.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(p))
	}
	return n, nil
}

// Flush blocks until written data has left the port, when the port supports it.
func (s *Stream) Flush() error {
	if d, ok := s.port.(Drainer); ok {
		return d.Drain()
	}
	return nil
}

// Close stops the background reader and closes the port.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
		s.wg.Wait()
	})
	return err
}
