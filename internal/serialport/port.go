// Package serialport opens the sensor UART and exposes it as a buffered,
// deadline-bounded byte stream suitable for a half-duplex line protocol.
package serialport

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement; the stream
// uses it so its background reader wakes up periodically.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// Drainer is implemented by ports that can block until queued output has
// been transmitted (go.bug.st/serial's Port does).
type Drainer interface {
	Drain() error
}

// InputResetter is implemented by ports that can purge the OS receive buffer.
type InputResetter interface {
	ResetInputBuffer() error
}
