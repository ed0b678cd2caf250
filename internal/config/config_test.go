package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fakenotifyd.toml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Daemon.LogLevel)
	assert.Equal(t, 500, cfg.Daemon.DebounceMs)
}

func TestLoadBareIntegerPollInterval(t *testing.T) {
	path := writeTemp(t, `
[daemon]
socket = "/tmp/fakenotify.sock"

[[watch]]
path = "/data"
poll_interval = 5
recursive = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Watch, 1)
	assert.Equal(t, 5*time.Second, cfg.Watch[0].PollInterval.AsDuration())
	assert.True(t, cfg.Watch[0].Recursive)
}

func TestLoadDurationStringPollInterval(t *testing.T) {
	path := writeTemp(t, `
[[watch]]
path = "/data"
poll_interval = "250ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Watch, 1)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch[0].PollInterval.AsDuration())
}

func TestEnvOverridesSocket(t *testing.T) {
	t.Setenv("FAKENOTIFYD_SOCKET", "/run/custom.sock")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/run/custom.sock", cfg.Daemon.Socket)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Daemon.LogLevel)
}
