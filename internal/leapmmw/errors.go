package leapmmw

import "errors"

var (
	// ErrTimeout means no terminal token arrived before the exchange deadline.
	ErrTimeout = errors.New("no response before deadline")
	// ErrCommandFailed means the sensor answered "Error".
	ErrCommandFailed = errors.New("sensor rejected command")
	// ErrMalformedResponse covers short parameter lines and broken status packets.
	ErrMalformedResponse = errors.New("malformed sensor response")
	// ErrInvalidArgument is returned before anything is transmitted.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoResponse means a multi-line read returned nothing at all.
	ErrNoResponse = errors.New("no data from sensor")
	// ErrNotBatching is returned by ConfigEnd outside a ConfigBegin batch.
	ErrNotBatching = errors.New("not in a configuration batch")
	// ErrNotReady means no transport has been attached.
	ErrNotReady = errors.New("sensor transport not attached")
	// ErrWriteFailed wraps transport write and flush failures.
	ErrWriteFailed = errors.New("failed to write command")
)
