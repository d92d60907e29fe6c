// Package version holds the build identity of the sranges binary.
package version

import (
	"runtime/debug"
	"time"
)

// Set with -ldflags "-X github.com/Sumatoshi-tech/sranges/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = "<unknown>"
)

const shortCommitLen = 12

// InitBinaryVersion fills the fields left unset by the linker from the module build info.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "<unknown>" {
				Commit = setting.Value[:min(len(setting.Value), shortCommitLen)]
			}
		case "vcs.time":
			if Date == "<unknown>" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					Date = t.UTC().Format(time.DateOnly)
				}
			}
		}
	}
}

// String renders the version line printed by the CLI.
func String() string {
	return "sranges " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}
