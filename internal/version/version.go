package version

import (
	"runtime"
	"time"
)

// These variables are set at build time using ldflags
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"
	// Commit is the git commit hash
	Commit = "unknown"
	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

var started = time.Now()

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// Get returns the build information and current uptime
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Uptime:    Uptime().Round(time.Second).String(),
	}
}

// Uptime returns the time since the process started
func Uptime() time.Duration {
	return time.Since(started)
}

// String returns a formatted version string
func String() string {
	if Version == "dev" {
		return "dev (commit: " + Commit + ")"
	}
	return Version + " (commit: " + Commit + ")"
}
