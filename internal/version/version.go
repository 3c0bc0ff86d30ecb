// Package version carries build metadata injected via ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/MeKo-Tech/digito/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Current returns the build metadata. A binary built without ldflags falls
// back to the VCS revision recorded by the Go toolchain.
func Current() Build {
	b := Build{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	if b.GitCommit != "unknown" {
		return b
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				b.GitCommit = s.Value
			case "vcs.time":
				if b.BuildDate == "unknown" {
					b.BuildDate = s.Value
				}
			}
		}
	}
	return b
}

// String renders the version line shown by `digito --version`.
func String() string {
	b := Current()
	return fmt.Sprintf("%s (commit %s, built %s, %s)", b.Version, b.GitCommit, b.BuildDate, b.GoVersion)
}
