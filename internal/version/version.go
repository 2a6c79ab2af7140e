// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/presence.report/internal/version.Version=1.0.0"
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for -version output.
func String() string {
	return fmt.Sprintf("presence %s (%s, built %s)", Version, GitSHA, BuildTime)
}
