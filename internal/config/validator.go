package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateRunner(&cfg.Runner)
	v.validateState(&cfg.State)
	v.validateReconcile(&cfg.Reconcile)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
}

func (v *Validator) validateRunner(cfg *RunnerConfig) {
	if cfg.PortRangeStart <= 0 || cfg.PortRangeStart > 65535 {
		v.addError("runner.port_range_start", cfg.PortRangeStart, "must be between 1 and 65535")
	}
	if cfg.PortRangeEnd <= 0 || cfg.PortRangeEnd > 65535 {
		v.addError("runner.port_range_end", cfg.PortRangeEnd, "must be between 1 and 65535")
	}
	if cfg.PortRangeEnd < cfg.PortRangeStart {
		v.addError("runner.port_range_end", cfg.PortRangeEnd,
			"must not be below runner.port_range_start")
	}
	if cfg.Interpreter == "" {
		v.addError("runner.interpreter", cfg.Interpreter, "must not be empty")
	}
	if cfg.ProcessName == "" {
		v.addError("runner.process_name", cfg.ProcessName, "must not be empty")
	}
	if d, err := time.ParseDuration(cfg.GracePeriod); err != nil {
		v.addError("runner.grace_period", cfg.GracePeriod, "must be a valid duration")
	} else if d <= 0 {
		v.addError("runner.grace_period", cfg.GracePeriod, "must be positive")
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	if cfg.Path == "" {
		v.addError("state.path", cfg.Path, "must not be empty")
	}
}

func (v *Validator) validateReconcile(cfg *ReconcileConfig) {
	if !cfg.Enabled {
		return
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		v.addError("reconcile.schedule", cfg.Schedule, "must be a valid cron schedule")
	}
}
