package leapmmw

import (
	"strconv"
	"strings"
)

// FormatFixed renders v with three fractional digits, the form the sensor
// expects for distances and delays.
func FormatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Command joins a command name and its arguments with single spaces.
func Command(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
