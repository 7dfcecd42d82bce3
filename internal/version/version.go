// Package version carries build identity stamped in at link time, e.g.
// -ldflags "-X github.com/banshee-data/timscan/internal/version.Version=v0.4.0".
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for unstamped local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime records when the binary was linked.
	BuildTime = "unknown"
)

// String renders the identity line printed by the version subcommand. The
// deploy tooling records this line in backup manifests, so keep the shape
// stable.
func String() string {
	return fmt.Sprintf("timscan %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
