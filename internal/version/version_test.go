package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetInfo(t *testing.T) {
	orig := []string{Version, BuildTime, GitCommit, GoVersion}
	defer func() { Version, BuildTime, GitCommit, GoVersion = orig[0], orig[1], orig[2], orig[3] }()

	SetInfo("1.0.0", "2026-01-01T00:00:00Z", "abc123", "go1.26")
	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "abc123", GitCommit)

	SetInfo("", "", "", "")
	assert.Equal(t, "1.0.0", Version, "empty values keep the current ones")

	assert.Equal(t, "shuttlewatch 1.0.0 (commit abc123, built 2026-01-01T00:00:00Z, go1.26)", String())
}

func TestFormatStartupMessage(t *testing.T) {
	msg := FormatStartupMessage(3)
	assert.Contains(t, msg, Version)
	assert.Contains(t, msg, "Resumed jobs: 3")
}
