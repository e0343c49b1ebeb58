package version

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withLinked(t *testing.T, v, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestLinkedValuesWin(t *testing.T) {
	withLinked(t, "v1.2.3", "0123456789abcdef", "2024-05-01T10:00:00Z")

	assert.Equal(t, "v1.2.3", GetVersion())
	assert.Equal(t, "0123456789abcdef", GetGitCommit())
	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())

	info := GetBuildInfo()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)

	detailed := GetDetailedVersion()
	assert.True(t, strings.HasPrefix(detailed, "Version: v1.2.3\n"))
	assert.Contains(t, detailed, "Commit: 0123456789abcdef")
	assert.Contains(t, detailed, "Built: 2024-05-01T10:00:00Z")
}

func TestDevShortVersion(t *testing.T) {
	withLinked(t, "dev", "abcdef0123", "unknown")
	assert.True(t, strings.HasPrefix(GetShortVersion(), "dev"))
	assert.Equal(t, "dev-abcdef0", GetShortVersion())
}

func TestParseBuildTime(t *testing.T) {
	tests := []struct {
		in   string
		zero bool
	}{
		{"", true},
		{"unknown", true},
		{"yesterday", true},
		{"2024-05-01T10:00:00Z", false},
		{"2024-05-01T10:00:00", false},
		{"2024-05-01 10:00:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.zero, parseBuildTime(tt.in).IsZero())
		})
	}
}
