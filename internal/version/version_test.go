package version

import (
	"runtime/debug"
	"testing"
)

func TestCurrentPrefersLinkedVersion(t *testing.T) {
	old := buildVersion
	t.Cleanup(func() { buildVersion = old })
	buildVersion = "v1.2.3"
	if got := Current(); got != "v1.2.3" {
		t.Fatalf("Current() = %q", got)
	}
}

func TestPseudoVersion(t *testing.T) {
	tests := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{"no vcs", nil, ""},
		{
			"clean",
			[]debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}, {Key: "vcs.time", Value: "2026-01-02T03:04:05Z"}},
			"v0.0.0-20260102030405-0123456789ab",
		},
		{
			"dirty",
			[]debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}, {Key: "vcs.time", Value: "2026-01-02T03:04:05Z"}, {Key: "vcs.modified", Value: "true"}},
			"v0.0.0-20260102030405-abc+dirty",
		},
		{"bad time", []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}, {Key: "vcs.time", Value: "yesterday"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pseudoVersion(tt.settings); got != tt.want {
				t.Fatalf("pseudoVersion = %q, want %q", got, tt.want)
			}
		})
	}
}
