// Package version holds build information set at link time:
//
//	go build -ldflags "-X classrelay/internal/version.Version=v1.2.0 -X classrelay/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line summary of the build
func Info() string {
	return fmt.Sprintf("classrelay %s (commit %s, built %s)", Version, Commit, Date)
}
