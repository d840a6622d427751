// Package version reports build metadata for the extplan binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// These variables are set at build time using -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// EngineModule is the module path of the bundler the build command drives.
const EngineModule = "github.com/evanw/esbuild"

// Info describes the running binary.
type Info struct {
	Version       string    `json:"version" yaml:"version"`
	GitCommit     string    `json:"git_commit" yaml:"git_commit"`
	Dirty         bool      `json:"dirty" yaml:"dirty"`
	BuildTime     time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion     string    `json:"go_version" yaml:"go_version"`
	Platform      string    `json:"platform" yaml:"platform"`
	EngineVersion string    `json:"engine_version" yaml:"engine_version"`
}

// Get collects build information from the ldflags variables, falling back
// to the module build info embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildTime:     parseBuildTime(BuildTime),
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		EngineVersion: "unknown",
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fromBuildInfo(info, bi)
}

func fromBuildInfo(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "" || info.Version == "dev" {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
	}

	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" || info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
			}
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseBuildTime(setting.Value)
			}
		}
	}

	for _, dep := range bi.Deps {
		if dep.Path != EngineModule {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		info.EngineVersion = dep.Version
	}

	if info.Version == "dev" && len(info.GitCommit) >= 7 && info.GitCommit != "unknown" {
		info.Version = "dev-" + info.GitCommit[:7]
	}
	return info
}

// Short returns the version with an abbreviated commit when one is known.
func (i Info) Short() string {
	s := i.Version
	if len(i.GitCommit) >= 7 && i.GitCommit != "unknown" && !strings.HasPrefix(i.Version, "dev-") {
		s += " (" + i.GitCommit[:7] + ")"
	}
	if i.Dirty {
		s += " (dirty)"
	}
	return s
}

// IsRelease reports whether this is a tagged build.
func (i Info) IsRelease() bool {
	return i.Version != "dev" && !strings.HasPrefix(i.Version, "dev-")
}

// Detailed renders every known field, one per line.
func (i Info) Detailed() string {
	parts := []string{fmt.Sprintf("Version: %s", i.Version)}
	if i.GitCommit != "unknown" {
		parts = append(parts, fmt.Sprintf("Commit: %s", i.GitCommit))
	}
	if !i.BuildTime.IsZero() {
		parts = append(parts, fmt.Sprintf("Built: %s", i.BuildTime.Format(time.RFC3339)))
	}
	parts = append(parts,
		fmt.Sprintf("Go: %s", i.GoVersion),
		fmt.Sprintf("Platform: %s", i.Platform),
		fmt.Sprintf("Engine: esbuild %s", i.EngineVersion),
	)
	return strings.Join(parts, "\n")
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
