package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "RUNNERD",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "RUNNERD",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (RUNNERD_*)
// 3. Project config (.runnerd.yaml in current directory)
// 4. User config (~/.config/runnerd/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".runnerd")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "runnerd"))
		}
	}

	// Read config file (ignore not found)
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Server defaults
	l.v.SetDefault("server.host", "localhost")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.enable_cors", true)

	// Runner defaults
	l.v.SetDefault("runner.port_range_start", 9001)
	l.v.SetDefault("runner.port_range_end", 9010)
	l.v.SetDefault("runner.interpreter", "python3")
	l.v.SetDefault("runner.process_name", "python")
	l.v.SetDefault("runner.grace_period", "3s")
	l.v.SetDefault("runner.base_dir", ".")
	l.v.SetDefault("runner.log_dir", defaultLogDir())
	l.v.SetDefault("runner.entry_class_marker", "Crew")

	// State defaults
	l.v.SetDefault("state.path", ".runnerd/registry.db")

	// Reconcile defaults
	l.v.SetDefault("reconcile.enabled", true)
	l.v.SetDefault("reconcile.schedule", "@every 1m")
}

func defaultLogDir() string {
	return filepath.Join(os.TempDir(), "runnerd-logs")
}
