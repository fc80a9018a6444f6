// Package config loads and validates runnerd configuration.
package config

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	State     StateConfig     `mapstructure:"state"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	EnableCORS bool   `mapstructure:"enable_cors"`
}

// RunnerConfig configures runner launch and termination.
type RunnerConfig struct {
	// Inclusive candidate port range for launched runners.
	PortRangeStart int `mapstructure:"port_range_start"`
	PortRangeEnd   int `mapstructure:"port_range_end"`

	// Interpreter executes rendered artifacts.
	Interpreter string `mapstructure:"interpreter"`
	// ProcessName is the substring a live runner's OS process name must
	// contain before it is ever signaled.
	ProcessName string `mapstructure:"process_name"`
	// GracePeriod is how long termination waits after the graceful
	// signal before escalating to a kill, e.g. "3s".
	GracePeriod string `mapstructure:"grace_period"`

	// BaseDir is the working directory for spawned runners.
	BaseDir string `mapstructure:"base_dir"`
	// LogDir holds per-port runner log files.
	LogDir string `mapstructure:"log_dir"`
	// EntryClassMarker selects the template entry-point class.
	EntryClassMarker string `mapstructure:"entry_class_marker"`
}

// StateConfig configures registry persistence.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// ReconcileConfig configures the registry/OS reconciliation sweep.
type ReconcileConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
