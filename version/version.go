// Package version records build information stamped at link time.
package version

import "runtime"

// Stamped via ldflags:
//
//	go build -ldflags "-X github.com/shamayhq/nesach/version.GitRelease=v0.1.0"
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
)

// GoInfo reports the toolchain and platform of the build.
var GoInfo = runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
