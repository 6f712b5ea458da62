package version

import (
	"fmt"
	"runtime"
)

// Build-time values, overridden via -ldflags on release builds.
var (
	Version   = "v0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info represents the build information of the history server.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("Version: %s, GitCommit: %s, BuildDate: %s, GoVersion: %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}
