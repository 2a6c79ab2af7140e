package api

import (
	"fmt"
	"io"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// captureLogs redirects monitoring.Logf to w and returns a restore func.
func captureLogs(w io.Writer) func() {
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		fmt.Fprintf(w, format+"\n", v...)
	})
	return func() { monitoring.Logf = prev }
}
