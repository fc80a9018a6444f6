package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runnerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigFile(writeConfigFile(t, "")).Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.EnableCORS)
	assert.Equal(t, 9001, cfg.Runner.PortRangeStart)
	assert.Equal(t, 9010, cfg.Runner.PortRangeEnd)
	assert.Equal(t, "python3", cfg.Runner.Interpreter)
	assert.Equal(t, "python", cfg.Runner.ProcessName)
	assert.Equal(t, "3s", cfg.Runner.GracePeriod)
	assert.Equal(t, "Crew", cfg.Runner.EntryClassMarker)
	assert.Equal(t, ".runnerd/registry.db", cfg.State.Path)
	assert.True(t, cfg.Reconcile.Enabled)
	assert.Equal(t, "@every 1m", cfg.Reconcile.Schedule)
}

func TestLoadDefaultsPassValidation(t *testing.T) {
	cfg, err := NewLoader().WithConfigFile(writeConfigFile(t, "")).Load()
	require.NoError(t, err)
	require.NoError(t, NewValidator().Validate(cfg))
}

func TestLoadFromConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
log:
  level: debug
runner:
  port_range_start: 9100
  port_range_end: 9105
  interpreter: python3.11
server:
  port: 9999
`)

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9100, cfg.Runner.PortRangeStart)
	assert.Equal(t, 9105, cfg.Runner.PortRangeEnd)
	assert.Equal(t, "python3.11", cfg.Runner.Interpreter)
	assert.Equal(t, 9999, cfg.Server.Port)
	// Untouched keys keep their defaults.
	assert.Equal(t, "python", cfg.Runner.ProcessName)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9999
`)
	t.Setenv("RUNNERD_SERVER_PORT", "7777")
	t.Setenv("RUNNERD_LOG_LEVEL", "warn")
	t.Setenv("RUNNERD_RUNNER_PORT_RANGE_START", "9500")

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 9500, cfg.Runner.PortRangeStart)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := writeConfigFile(t, "log: [unclosed")

	_, err := NewLoader().WithConfigFile(path).Load()
	require.Error(t, err)
}
