// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/peerlink/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/peerlink/internal/version.Commit=$(git rev-parse --short HEAD)" ./cmd/relay
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ", " + runtime.Version() + ")"
}

// Info returns version fields for health responses.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"go":      runtime.Version(),
	}
}
