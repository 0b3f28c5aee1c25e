// Package version reports the build version.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "github.com/mnehpets/sheetrpc"

// buildVersion is set via -ldflags "-X github.com/mnehpets/sheetrpc/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the linked version, the module version from build info,
// a pseudo-version derived from VCS stamps, or "v0.0.0-unknown".
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
		if v := pseudoVersion(info.Settings); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok && strings.TrimSpace(info.Main.Path) != "" {
		return info.Main.Path
	}
	return defaultModule
}

func pseudoVersion(settings []debug.BuildSetting) string {
	var revision, stamp string
	var modified bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			stamp = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" || stamp == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + revision
	if modified {
		v += "+dirty"
	}
	return v
}
