// Package version holds build-time identifiers injected via -ldflags.
package version

// Version and Commit are overridden at build time, e.g.:
//   go build -ldflags "-X github.com/wisbric/paygate/internal/version.Version=1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
)
