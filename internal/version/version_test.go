package version

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionUsesLdflags(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "v1.2.3"
	assert.Equal(t, "v1.2.3", GetVersion())
	assert.Equal(t, "v1.2.3", GetBuildInfo().Version)
}

func TestGetVersionDevFallback(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "dev"
	v := GetVersion()
	assert.NotEmpty(t, v)
}

func TestParseBuildTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"unknown", time.Time{}},
		{"", time.Time{}},
		{"garbage", time.Time{}},
		{"2026-10-18T09:30:00Z", time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)},
		{"2026-10-18 09:30:00", time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, tt.want.Equal(parseBuildTime(tt.in)))
		})
	}
}

func TestGetBuildInfoPlatform(t *testing.T) {
	info := GetBuildInfo()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}
