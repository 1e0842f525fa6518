// Package version reports the build version of the proxiscan binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/proxiscan/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/proxiscan/internal/version.Commit=abc1234"
//
// Otherwise they are filled from VCS build info, falling back to "dev".
var (
	Version = ""
	Commit  = ""
	// BuildTime is the VCS commit time when known.
	BuildTime = ""
)

// Info is a snapshot of the build metadata.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			applyBuildSettings(info.Settings)
		}
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// applyBuildSettings fills empty fields from the vcs.* build settings.
func applyBuildSettings(settings []debug.BuildSetting) {
	var revision, modified, vcsTime string
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			vcsTime = s.Value
		}
	}

	if Commit == "" && revision != "" {
		Commit = shortRevision(revision)
		if modified == "true" {
			Commit += "-dirty"
		}
	}

	if vcsTime == "" {
		return
	}
	t, err := time.Parse(time.RFC3339, vcsTime)
	if err != nil {
		return
	}
	if BuildTime == "" {
		BuildTime = t.UTC().Format(time.RFC3339)
	}
	if Version == "" {
		// No tags in build info; date the dev build instead.
		Version = "dev-" + t.Format("20060102")
	}
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Full returns the version string including the commit.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// String renders the info the way `proxiscan version` prints it.
func (i Info) String() string {
	s := fmt.Sprintf("proxiscan %s (commit: %s, %s, %s)", i.Version, i.Commit, i.GoVersion, i.Platform)
	if i.BuildTime != "" {
		s += "\nbuilt " + i.BuildTime
	}
	return s
}
