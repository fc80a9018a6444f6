package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "auto"},
		Server: ServerConfig{Host: "localhost", Port: 8080, EnableCORS: true},
		Runner: RunnerConfig{
			PortRangeStart:   9001,
			PortRangeEnd:     9010,
			Interpreter:      "python3",
			ProcessName:      "python",
			GracePeriod:      "3s",
			BaseDir:          ".",
			LogDir:           "/tmp/runnerd-logs",
			EntryClassMarker: "Crew",
		},
		State:     StateConfig{Path: ".runnerd/registry.db"},
		Reconcile: ReconcileConfig{Enabled: true, Schedule: "@every 1m"},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	require.NoError(t, NewValidator().Validate(validConfig()))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"server port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"server port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"range start zero", func(c *Config) { c.Runner.PortRangeStart = 0 }, "runner.port_range_start"},
		{"range inverted", func(c *Config) { c.Runner.PortRangeEnd = 9000 }, "runner.port_range_end"},
		{"empty interpreter", func(c *Config) { c.Runner.Interpreter = "" }, "runner.interpreter"},
		{"empty process name", func(c *Config) { c.Runner.ProcessName = "" }, "runner.process_name"},
		{"bad grace period", func(c *Config) { c.Runner.GracePeriod = "soon" }, "runner.grace_period"},
		{"negative grace period", func(c *Config) { c.Runner.GracePeriod = "-1s" }, "runner.grace_period"},
		{"empty state path", func(c *Config) { c.State.Path = "" }, "state.path"},
		{"bad schedule", func(c *Config) { c.Reconcile.Schedule = "whenever" }, "reconcile.schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.field),
				"error should name %s: %v", tt.field, err)
		})
	}
}

func TestValidateSkipsScheduleWhenReconcileDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Reconcile.Enabled = false
	cfg.Reconcile.Schedule = "whenever"

	require.NoError(t, NewValidator().Validate(cfg))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	cfg.Server.Port = 0
	cfg.Runner.Interpreter = ""

	v := NewValidator()
	err := v.Validate(cfg)
	require.Error(t, err)
	assert.Len(t, v.Errors(), 3)
}
