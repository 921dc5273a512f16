// Package version carries build metadata injected with -ldflags.
package version

import "fmt"

var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = "unknown"
)

func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// String is the one-line form printed by the version command.
func String() string {
	return fmt.Sprintf("shuttlewatch %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// FormatStartupMessage is sent to the admin chat when the watcher starts.
func FormatStartupMessage(resumed int) string {
	return fmt.Sprintf("🚆 shuttlewatch started\nVersion: %s\nResumed jobs: %d", Version, resumed)
}
