// Package buildinfo reports the version of the running binary. The variables
// are set with -ldflags, for example
//
//	-X 'github.com/m3rciful/onboardbot/core/buildinfo.Version=v1.2.3'
//
// and fall back to the VCS stamp the Go toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Link-time values; empty ones are resolved by Get.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the resolved build identity.
type Info struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
}

func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, commit, i.Date)
}

// Get merges the ldflags values with the embedded VCS settings.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return fill(info)
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return fill(info)
}

func fill(i Info) Info {
	if i.Commit == "" {
		i.Commit = "local"
	}
	if i.Date == "" {
		i.Date = "unknown"
	}
	return i
}
