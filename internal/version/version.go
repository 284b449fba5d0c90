package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.1.0-dev"

var (
	AppName = "SyncTray"

	// Version, Revision and BuildDate are set with -ldflags on release builds.
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// Info is the machine readable form of the build metadata.
type Info struct {
	App       string `json:"app" yaml:"app"`
	Version   string `json:"version" yaml:"version"`
	Revision  string `json:"revision" yaml:"revision"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

func Current() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// fillFromBuildInfo only replaces values that were not set by ldflags.
func fillFromBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Revision = rev
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

// Short returns `0.1.0 (5e23a4)`
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

func ShortWithApp() string {
	return AppName + " " + Short()
}

// Detailed returns `0.1.0 (5e23a4; go1.23.6; linux/amd64; 2026-01-02T03:04:05Z)`
func Detailed() string {
	info := Current()
	return fmt.Sprintf("%s (%s; %s; %s; %s)", info.Version, info.Revision, info.GoVersion, info.Platform, info.BuildDate)
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		settings := make(map[string]string, len(info.Settings))
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}
		fillFromBuildInfo(info.Main.Version, settings)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
