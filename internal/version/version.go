// Package version holds build information for the livefeed binaries.
//
// Set at build time via ldflags:
//
//	go build -ldflags "-X github.com/alphaorbit/livefeed/internal/version.Version=1.0.0 \
//	                   -X github.com/alphaorbit/livefeed/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/alphaorbit/livefeed/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/...
package version

import "log/slog"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// Attr groups the build information for structured logs.
func Attr() slog.Attr {
	return slog.Group("build",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("time", BuildTime),
	)
}
