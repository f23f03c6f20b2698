// Package version reports build metadata.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/rbright/hubdrive/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// String describes the binary, falling back to module and VCS build info
// for fields not set at link time.
func String() string {
	version, commit, date := Version, Commit, Date
	if info, ok := readBuildInfo(); ok {
		if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "none" && setting.Value != "" {
					commit = setting.Value
					if len(commit) > 12 {
						commit = commit[:12]
					}
				}
			case "vcs.time":
				if date == "unknown" && setting.Value != "" {
					date = setting.Value
				}
			}
		}
	}
	return "hubdrive " + version + " (commit=" + commit + ", date=" + date + ", go=" + runtime.Version() + ")"
}
