// Package version exposes build metadata injected through -ldflags.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the structured form printed by `wakeproof version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go"`
}

// Get returns build metadata. A dev build installed with `go install`
// reports the module version recorded by the toolchain.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	if info.Version == "dev" {
		if build, ok := debug.ReadBuildInfo(); ok && build.Main.Version != "" && build.Main.Version != "(devel)" {
			info.Version = build.Main.Version
		}
	}
	return info
}

func String() string {
	info := Get()
	return "wakeproof " + info.Version + " (commit=" + info.Commit + ", date=" + info.Date + ", go=" + info.GoVersion + ")"
}
