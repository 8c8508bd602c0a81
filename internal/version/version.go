// Package version reports graphbulk build information. Release builds set it
// with:
//
//	go build -ldflags "-X github.com/systemshift/graphbulk/internal/version.version=v1.2.0 \
//		-X github.com/systemshift/graphbulk/internal/version.commit=$(git rev-parse --short HEAD) \
//		-X github.com/systemshift/graphbulk/internal/version.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "fmt"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Version returns the release version, "dev" for local builds
func Version() string {
	return version
}

// BuildInfo returns the version, commit and build date on separate lines,
// as printed by -version
func BuildInfo() string {
	return fmt.Sprintf("graphbulk %s\nVersion: %s\nCommit: %s\nBuild Date: %s\nBulk format: %d",
		version, version, commit, date, bulkFormat)
}

// bulkFormat mirrors sink.FormatVersion so -version reports which bulk file
// layout the binary writes
const bulkFormat = 1
