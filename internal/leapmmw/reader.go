package leapmmw

import "time"

// nextLine waits for input and reads one line into buf. It returns false once
// deadline has passed without any input. A line cut short by the transport
// timeout is still returned; the classifier treats it as noise or short.
func (e *Engine) nextLine(deadline time.Time, buf []byte) (string, bool) {
	for e.clock.Now().Before(deadline) {
		if e.transport.Available() <= 0 {
			e.clock.Sleep(pollInterval)
			continue
		}
		n, err := e.transport.ReadBytesUntil('\n', buf)
		if err != nil {
			e.logf("leapmmw: partial line after %d bytes: %v", n, err)
		}
		return cleanLine(buf[:n]), true
	}
	return "", false
}

// readLines accumulates up to maxLines LF-terminated lines, dropping CR bytes,
// until the count is reached, the packet buffer is full or timeout elapses.
// The result may be partial; an empty result means nothing arrived.
func (e *Engine) readLines(maxLines int, timeout time.Duration) []byte {
	deadline := e.clock.Now().Add(timeout)
	out := make([]byte, 0, packetCapacity)
	remaining := maxLines

	for remaining > 0 && len(out) < packetCapacity && e.clock.Now().Before(deadline) {
		if e.transport.Available() <= 0 {
			e.clock.Sleep(pollInterval)
			continue
		}

		b, err := e.transport.ReadByte()
		if err != nil {
			continue
		}
		if b == '\r' {
			continue
		}

		out = append(out, b)
		if b == '\n' {
			remaining--
		}
	}
	return out
}
