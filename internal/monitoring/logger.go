// Package monitoring holds the diagnostic log sink shared by the sensor
// engine, the presence monitor and the HTTP layer.
package monitoring

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/phsym/console-slog"
)

// LogfFunc is the printf-style shape of a diagnostic sink.
type LogfFunc func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf LogfFunc = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f LogfFunc) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// DiagnosticLevel is the level every Logf message is recorded at.
const DiagnosticLevel = slog.LevelInfo

// NewSlogLogf returns a sink that formats each message and records it at
// DiagnosticLevel through a slog handler filtering at minLevel, so a minLevel
// above Info mutes the diagnostics. With asJSON the output is one JSON object
// per line with the time stored under "ts"; otherwise human-readable
// console output.
func NewSlogLogf(w io.Writer, minLevel slog.Level, asJSON bool) LogfFunc {
	var handler slog.Handler
	if asJSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: minLevel,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	} else {
		handler = console.NewHandler(w, &console.HandlerOptions{Level: minLevel})
	}
	logger := slog.New(handler)

	return func(format string, v ...interface{}) {
		ctx := context.Background()
		if !logger.Enabled(ctx, DiagnosticLevel) {
			return
		}
		logger.Log(ctx, DiagnosticLevel, fmt.Sprintf(format, v...))
	}
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
