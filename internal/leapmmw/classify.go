package leapmmw

import "strings"

// lineClass is the verdict of the response classifier for one reply line.
type lineClass int

const (
	// classShort lines are shorter than anything expected; likely a partial read.
	classShort lineClass = iota
	classPrompt
	classEcho
	classAlternate
	classDone
	classError
	classNoise
)

func (c lineClass) String() string {
	switch c {
	case classShort:
		return "short"
	case classPrompt:
		return "prompt"
	case classEcho:
		return "echo"
	case classAlternate:
		return "alternate"
	case classDone:
		return "done"
	case classError:
		return "error"
	default:
		return "noise"
	}
}

// classifier holds the per-exchange context needed to classify reply lines.
// All comparisons are prefix matches, as the sensor may append detail.
type classifier struct {
	command   string
	alternate string
	minLength int
}

func newClassifier(command, alternate string) classifier {
	minLength := min(len(command), len(TokenDone), len(TokenError))
	if alternate != "" {
		minLength = min(minLength, len(alternate))
	}
	return classifier{command: command, alternate: alternate, minLength: minLength}
}

func (c classifier) classify(line string) lineClass {
	switch {
	case len(line) < c.minLength:
		return classShort
	case strings.HasPrefix(line, Prompt):
		return classPrompt
	case strings.HasPrefix(line, c.command):
		return classEcho
	case c.alternate != "" && strings.HasPrefix(line, c.alternate):
		return classAlternate
	case strings.HasPrefix(line, TokenDone):
		return classDone
	case strings.HasPrefix(line, TokenError):
		return classError
	}
	return classNoise
}

// isEcho reports whether line repeats the command, either bare or after the
// prompt the sensor prints before echoing.
func (c classifier) isEcho(line string) bool {
	return strings.HasPrefix(line, c.command) || strings.HasPrefix(stripPrompt(line), c.command)
}

func stripPrompt(line string) string {
	rest, ok := strings.CutPrefix(line, Prompt)
	if !ok {
		return line
	}
	return strings.TrimLeft(rest, " ")
}

// cleanLine truncates at the first NUL and drops one trailing CR.
func cleanLine(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}
	return strings.TrimSuffix(string(raw), "\r")
}
