// Package build holds values stamped in at link time, e.g.
// -ldflags "-X github.com/G-Research/readsizer/internal/common/build.ReleaseVersion=v1.2.3".
package build

import "runtime"

var (
	ReleaseVersion = "UNKNOWN_VERSION"
	GitCommit      = "UNKNOWN_GITCOMMIT"
	BuildTime      = "UNKNOWN_BUILDTIME"
	GoVersion      = runtime.Version()
)
