package leapmmw

import (
	"bytes"
	"fmt"
)

// ParsePresencePacket finds a status packet of the form "$JYBSS,1, , , *"
// in buf and reports whether it signals presence. The packet must start with
// '$' and close with '*' within 16 bytes; the flag is the eighth byte.
func ParsePresencePacket(buf []byte) (bool, error) {
	start := bytes.IndexByte(buf, '$')
	if start < 0 {
		return false, fmt.Errorf("%w: no packet start in %q", ErrMalformedResponse, buf)
	}

	window := buf[start:]
	if len(window) > presenceWindow {
		window = window[:presenceWindow]
	}

	end := bytes.IndexByte(window, '*')
	if end < 0 {
		return false, fmt.Errorf("%w: no packet end in %q", ErrMalformedResponse, window)
	}

	packet := window[:end+1]
	return len(packet) > presenceIndex && packet[presenceIndex] == '1', nil
}

// ReadPresence requests a status packet and parses it. The reply may be
// preceded by an echo and a "Done" line, so up to three lines are read.
func (e *Engine) ReadPresence() (bool, error) {
	if err := e.writeCommand(CmdGetOutput); err != nil {
		return false, err
	}

	data := e.readLines(presenceLines, e.presenceTimeout)
	if len(data) == 0 {
		return false, fmt.Errorf("%w: %s", ErrNoResponse, CmdGetOutput)
	}

	present, err := ParsePresencePacket(data)
	if err != nil {
		e.logf("leapmmw: invalid presence data %q", data)
		return false, err
	}
	return present, nil
}
