// Package version exposes build metadata stamped via -ldflags.
package version

// Version is the CLI release version, overridden at build time with
// -ldflags "-X github.com/bkyoung/review-engine/internal/version.Version=v1.2.3".
var Version = "dev"
