// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata on one line, e.g.
// "kitti-replay v0.3.0 (abc1234, built 2026-01-02T15:04:05Z)".
func String() string {
	sha := GitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return fmt.Sprintf("kitti-replay %s (%s, built %s)", Version, sha, BuildTime)
}
