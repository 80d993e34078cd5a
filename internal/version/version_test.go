package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, v, c, d string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})
	Version, Commit, Date = v, c, d
}

func TestInfo(t *testing.T) {
	info := Info()
	assert.Contains(t, info, "botkit")
	assert.Contains(t, info, runtime.GOOS)

	withBuild(t, "1.2.3", "abc1234567890", "2026-01-15")
	info = Info()
	assert.Contains(t, info, "1.2.3")
	assert.Contains(t, info, "abc1234")
	assert.NotContains(t, info, "abc1234567890")
	assert.Contains(t, info, "2026-01-15")
}

func TestUserAgent(t *testing.T) {
	withBuild(t, "0.4.0", "deadbeefcafe", "x")
	assert.Equal(t, "botkit/0.4.0 (deadbee)", UserAgent())
}

func TestFields(t *testing.T) {
	withBuild(t, "0.4.0", "deadbeefcafe", "2026-02-01")
	f := Fields()
	assert.Equal(t, "0.4.0", f["version"])
	assert.Equal(t, "deadbee", f["commit"])
	assert.Equal(t, runtime.Version(), f["go"])
}

func TestShort(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"abcdefghij", "abcdefg"},
		{"abc", "abc"},
		{"", ""},
		{"1234567", "1234567"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, short(tt.input))
		})
	}
}
