package version

import "fmt"

// Set at build time via -ldflags "-X".
var (
	Version   = "0.1.0"
	Commit    = "dev"
	BuildDate = "unknown"
)

// Full returns the human-readable version string used by --version output
// and the /health endpoint.
func Full() string {
	return fmt.Sprintf("refusalbench-studio %s (commit:%s, built:%s)", Version, Commit, BuildDate)
}
