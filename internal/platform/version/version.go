package version

import (
	"fmt"
	"runtime"
)

// Build information, injected via ldflags:
//
//	-ldflags "-X github.com/pscheid92/contestpulse/internal/platform/version.Version=v1.2.3"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("contestpulse %s (%s, built %s, %s)", i.Version, i.Commit, i.BuildTime, i.GoVersion)
}
