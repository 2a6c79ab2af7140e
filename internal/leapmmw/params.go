package leapmmw

import (
	"fmt"
	"strings"
)

// Shape describes the expected data line of a configuration query.
type Shape struct {
	// Count is the exact number of parameters required.
	Count int
	// MaxWidth truncates each parameter.
	MaxWidth int
	// Prefix introduces the data line. Empty selects the first line that is
	// not prompt, echo or a terminal token, as version queries need.
	Prefix string
}

// Params returns the shape of a standard query reply introduced by
// DefaultResponsePrefix.
func Params(count, maxWidth int) Shape {
	return Shape{Count: count, MaxWidth: maxWidth, Prefix: DefaultResponsePrefix}
}

// FreeText returns a shape for replies without a recognised prefix.
func FreeText(count, maxWidth int) Shape {
	return Shape{Count: count, MaxWidth: maxWidth}
}

func (s Shape) validate() error {
	if s.Count < 1 || s.MaxWidth < 1 {
		return fmt.Errorf("%w: parameter shape %d x %d", ErrInvalidArgument, s.Count, s.MaxWidth)
	}
	return nil
}

// extract splits rest on whitespace and returns the first Count tokens, each
// cut to MaxWidth. Fewer than Count tokens is an error, never a short result.
func (s Shape) extract(rest string) ([]string, error) {
	fields := strings.Fields(rest)
	if len(fields) < s.Count {
		return nil, fmt.Errorf("%w: want %d parameters, got %d in %q", ErrMalformedResponse, s.Count, len(fields), rest)
	}

	params := make([]string, s.Count)
	for i := range params {
		p := fields[i]
		if len(p) > s.MaxWidth {
			p = p[:s.MaxWidth]
		}
		params[i] = p
	}
	return params, nil
}

// dataLine reports whether line carries the query data and returns the text
// after the prefix. A non-empty prefix may appear raw or after the prompt.
func (s Shape) dataLine(line string) (string, bool) {
	if s.Prefix == "" {
		return line, true
	}
	if rest, ok := strings.CutPrefix(line, s.Prefix); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(stripPrompt(line), s.Prefix); ok {
		return rest, true
	}
	return "", false
}

// GetConfig sends a query and returns the parameters of its data line.
// "Done" does not end the exchange since the data may follow it.
func (e *Engine) GetConfig(command string, shape Shape) ([]string, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if err := e.writeCommand(command); err != nil {
		return nil, err
	}

	c := newClassifier(command, "")
	deadline := e.clock.Now().Add(e.timeout)
	buf := make([]byte, lineCapacity)

	for {
		line, ok := e.nextLine(deadline, buf)
		if !ok {
			break
		}

		cls := c.classify(line)
		if cls == classShort || c.isEcho(line) {
			continue
		}

		if shape.Prefix != "" {
			if rest, ok := shape.dataLine(line); ok {
				return e.extract(command, shape, rest)
			}
		}

		switch cls {
		case classPrompt, classDone:
			continue
		case classError:
			return nil, fmt.Errorf("%w: %s", ErrCommandFailed, command)
		}

		if shape.Prefix == "" {
			return e.extract(command, shape, line)
		}
	}

	e.logf("leapmmw: %q: no data line within %v", command, e.timeout)
	return nil, fmt.Errorf("%w: %s", ErrTimeout, command)
}

func (e *Engine) extract(command string, shape Shape, rest string) ([]string, error) {
	params, err := shape.extract(rest)
	if err != nil {
		e.logf("leapmmw: %q: %v", command, err)
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return params, nil
}
