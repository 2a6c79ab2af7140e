package leapmmw

import (
	"io"
	"time"
)

// Transport is the duplex byte channel to the sensor. serialport.Stream
// implements it over a UART.
type Transport interface {
	io.Writer

	// Flush blocks until written bytes have been transmitted.
	Flush() error

	// Available reports how many bytes can be read without blocking.
	Available() int

	// ReadByte returns the next byte, waiting at most the current timeout.
	ReadByte() (byte, error)

	// ReadBytesUntil stores bytes in buf until delim (consumed, not stored),
	// a full buf or the timeout. It returns the number of bytes stored.
	ReadBytesUntil(delim byte, buf []byte) (int, error)

	// SetTimeout sets the bound used by ReadByte and ReadBytesUntil.
	SetTimeout(d time.Duration)
}
