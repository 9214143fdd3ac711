// Package version reports build information stamped in via ldflags:
//
//	go build -ldflags "-X github.com/teranos/entres/version.Version=v0.3.0 -X github.com/teranos/entres/version.CommitHash=$(git rev-parse HEAD)"
//
// Without ldflags, the commit and build time come from the VCS stamp the Go
// toolchain embeds in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const dev = "dev"

var (
	CommitHash = dev
	BuildTime  = "unknown"
	Version    = dev
)

// Info describes the running binary
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	Modified   bool   `json:"modified,omitempty"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

func Get() Info {
	info := Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fromBuildSettings(bi.Settings)
	}
	return info
}

// fromBuildSettings fills what ldflags left unset from the embedded VCS stamp
func (i *Info) fromBuildSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == dev {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "unknown" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

// IsRelease reports whether the binary was stamped with a version
func (i Info) IsRelease() bool {
	return i.Version != dev
}

// String is the one-line version: "entres v0.3.0 (0123456)" for releases,
// with the build time and a dirty marker for dev builds
func (i Info) String() string {
	if i.IsRelease() {
		return fmt.Sprintf("entres %s (%s)", i.Version, i.Short())
	}
	commit := i.Short()
	if i.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("entres dev (commit %s, built %s)", commit, i.BuildTime)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
