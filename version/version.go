// Package version reports the build of the running binary. The variables
// are stamped with -ldflags "-X"; unstamped builds fall back to the module
// information the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
)

//nolint:gochecknoglobals // set at build time
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

const unknown = "unknown"

// Info is the resolved build description.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// Get resolves the build description, reading debug.BuildInfo for any
// field that was not stamped.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.Date == "":
				info.Date = s.Value
			}
		}
	}

	if info.Version == "" {
		info.Version = "(devel)"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s) built %s", i.Version, i.Commit, i.Date)
}
