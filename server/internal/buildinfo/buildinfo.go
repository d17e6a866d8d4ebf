package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Repository is the project home printed in the startup banner.
const Repository = "https://github.com/sensillum/sensillum"

// Set at build time.
var (
	Version   = "dev"
	BuildTime = ""
	GitTag    = ""
	GitCommit = ""
	GitDirty  = ""
)

var (
	vcsOnce     sync.Once
	vcsRevision string
	vcsTime     string
	vcsModified bool
)

func loadVCS() {
	vcsOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				vcsRevision = s.Value
			case "vcs.time":
				vcsTime = s.Value
			case "vcs.modified":
				vcsModified = s.Value == "true"
			}
		}
	})
}

// Time returns the UTC build timestamp, or "unknown".
func Time() string {
	if BuildTime != "" {
		return BuildTime
	}
	loadVCS()
	if vcsTime != "" {
		return vcsTime
	}
	return "unknown"
}

// Commit returns the short commit hash, or "".
func Commit() string {
	c := GitCommit
	if c == "" {
		loadVCS()
		c = vcsRevision
	}
	if len(c) > 7 {
		c = c[:7]
	}
	return c
}

// Dirty reports whether the working tree had uncommitted changes at build time.
func Dirty() bool {
	if GitDirty != "" {
		return GitDirty == "true"
	}
	loadVCS()
	return vcsModified
}

// Full returns the version with git context, e.g.
//
//	0.1.0 @ v0.1.0 (built 2026-02-18T12:00:00Z)
//	0.1.0 @ a1b2c3d-dirty (built 2026-02-18T12:00:00Z)
//	0.1.0 (built 2026-02-18T12:00:00Z)
func Full() string {
	ref := GitTag
	if ref == "" {
		ref = Commit()
	}
	git := ""
	if ref != "" {
		git = " @ " + ref
		if Dirty() {
			git += "-dirty"
		}
	}
	return fmt.Sprintf("%s%s (built %s)", Version, git, Time())
}
