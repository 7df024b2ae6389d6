// Package version carries build metadata stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/minihead/minihead/internal/version.GitSHA=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for -version output and logs.
func String() string {
	return fmt.Sprintf("minihead %s (%s) built %s", Version, GitSHA, BuildTime)
}
