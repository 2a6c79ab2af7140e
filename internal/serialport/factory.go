package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// pumpReadTimeout is how long the background reader blocks in a single
// port read before checking whether the stream has been closed.
const pumpReadTimeout = 50 * time.Millisecond

// SerialPortOpener is a function type for opening serial ports.
// This allows for easier testing by replacing the opener function.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)

// OpenPort opens a real serial port at path using go.bug.st/serial.
func OpenPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return port, nil
}

// Open opens the serial port at path and wraps it in a Stream.
func Open(path string, opts PortOptions) (*Stream, error) {
	return OpenWith(OpenPort, path, opts)
}

// OpenWith opens a port with the given opener and wraps it in a Stream. Any
// pending input is purged so the first exchange starts clean.
func OpenWith(open SerialPortOpener, path string, opts PortOptions) (*Stream, error) {
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}

	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(pumpReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
		}
	}
	if r, ok := port.(InputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			port.Close()
			return nil, fmt.Errorf("reset input buffer on %s: %w", path, err)
		}
	}

	return NewStream(port), nil
}
