package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBuildSettings(t *testing.T) {
	vcs := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-04T10:11:12Z"},
		{Key: "vcs.modified", Value: "false"},
	}

	tests := []struct {
		name        string
		settings    []debug.BuildSetting
		version     string
		commit      string
		wantVersion string
		wantCommit  string
	}{
		{"vcs build", vcs, "", "", "dev-20260304", "0123456"},
		{"ldflags win", vcs, "v1.2.3", "abc", "v1.2.3", "abc"},
		{"dirty tree", append(vcs[:3:3], debug.BuildSetting{Key: "vcs.modified", Value: "true"}), "", "", "dev-20260304", "0123456-dirty"},
		{"short revision", []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}}, "", "", "", "abc"},
		{"no vcs", nil, "", "", "", ""},
		{"bad time", []debug.BuildSetting{{Key: "vcs.time", Value: "yesterday"}}, "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, c := fromBuildSettings(tt.settings, tt.version, tt.commit)
			assert.Equal(t, tt.wantVersion, v)
			assert.Equal(t, tt.wantCommit, c)
		})
	}
}

func TestFull(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Commit)
	assert.Equal(t, Version+" (commit: "+Commit+")", Full())
}

func TestRuntime(t *testing.T) {
	assert.True(t, strings.HasPrefix(Runtime(), runtime.Version()))
	assert.Contains(t, Runtime(), runtime.GOOS+"/"+runtime.GOARCH)
}
