// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kdeploy/kdeploy/pkg/descriptor"
)

const (
	// LogLevelDebug logs every pipeline step.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs deployments and server lifecycle.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs recoverable failures only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs failures only.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidUnitEntry is the sentinel error wrapped by InvalidUnitEntryError.
	ErrInvalidUnitEntry = errors.New("invalid persistence unit entry")
	// ErrInvalidDuration is returned for negative durations.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidPort is returned for ports outside 0-65535.
	ErrInvalidPort = errors.New("invalid port")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level of emitted log lines.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidUnitEntryError is returned when a UnitEntry has a blank name or DSN,
	// or repeats a name declared earlier.
	InvalidUnitEntryError struct {
		Index  int
		Name   string
		Reason string
	}

	// InvalidDurationError is returned for a negative duration setting.
	InvalidDurationError struct {
		Field string
		Value time.Duration
	}

	// InvalidPortError is returned for a port outside 0-65535.
	InvalidPortError struct {
		Value int
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sections.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Repository configures the local module repository.
		Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
		// Persistence configures the persistence units.
		Persistence PersistenceConfig `json:"persistence" mapstructure:"persistence"`
		// Deployment configures the deployment pipeline.
		Deployment DeploymentConfig `json:"deployment" mapstructure:"deployment"`
		// Admin configures the SSH admin console.
		Admin AdminConfig `json:"admin" mapstructure:"admin"`
		// Watch configures the repository watcher.
		Watch WatchConfig `json:"watch" mapstructure:"watch"`
		// Log configures logging.
		Log LogConfig `json:"log" mapstructure:"log"`
	}

	// RepositoryConfig configures the local module repository.
	RepositoryConfig struct {
		// Path is the repository root.
		Path string `json:"path" mapstructure:"path"`
	}

	// PersistenceConfig configures the persistence units.
	PersistenceConfig struct {
		// DataDir holds database files of units not listed in Units.
		DataDir string `json:"data_dir" mapstructure:"data_dir"`
		// Units maps persistence unit names to DSNs.
		Units []UnitEntry `json:"units" mapstructure:"units"`
		// DefaultUnit is the persistence unit of the host default descriptor.
		DefaultUnit string `json:"default_unit" mapstructure:"default_unit"`
	}

	// UnitEntry binds a persistence unit name to a DSN.
	UnitEntry struct {
		Name string `json:"name" mapstructure:"name"`
		DSN  string `json:"dsn" mapstructure:"dsn"`
	}

	// DeploymentConfig configures the deployment pipeline.
	DeploymentConfig struct {
		// MergeMode is used by units that do not choose one.
		MergeMode descriptor.MergeMode `json:"merge_mode" mapstructure:"merge_mode"`
		// RuntimeStrategy is the strategy of the host default descriptor.
		RuntimeStrategy descriptor.RuntimeStrategy `json:"runtime_strategy" mapstructure:"runtime_strategy"`
		// ScanClasspath scans external jars for annotated classes.
		ScanClasspath bool `json:"scan_classpath" mapstructure:"scan_classpath"`
		// ValidateProcesses rejects modules with invalid process definitions.
		ValidateProcesses bool `json:"validate_processes" mapstructure:"validate_processes"`
		// Descriptor is an optional file replacing the built-in host default descriptor.
		Descriptor string `json:"descriptor" mapstructure:"descriptor"`
	}

	// AdminConfig configures the SSH admin console.
	AdminConfig struct {
		Host string `json:"host" mapstructure:"host"`
		// Port 0 selects a free port.
		Port     int           `json:"port" mapstructure:"port"`
		TokenTTL time.Duration `json:"token_ttl" mapstructure:"token_ttl"`
		// HostKeyPath persists the server host key. Empty uses a key per run.
		HostKeyPath string `json:"host_key_path" mapstructure:"host_key_path"`
	}

	// WatchConfig configures the repository watcher.
	WatchConfig struct {
		Enabled  bool          `json:"enabled" mapstructure:"enabled"`
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Error implements the error interface.
func (e *InvalidUnitEntryError) Error() string {
	return fmt.Sprintf("persistence.units[%d] %q: %s", e.Index, e.Name, e.Reason)
}

// Unwrap returns ErrInvalidUnitEntry for errors.Is() compatibility.
func (e *InvalidUnitEntryError) Unwrap() error { return ErrInvalidUnitEntry }

// Error implements the error interface.
func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("%s: duration must not be negative, got %s", e.Field, e.Value)
}

// Unwrap returns ErrInvalidDuration for errors.Is() compatibility.
func (e *InvalidDurationError) Unwrap() error { return ErrInvalidDuration }

// Error implements the error interface.
func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("admin.port: %d is out of range (0-65535)", e.Value)
}

// Unwrap returns ErrInvalidPort for errors.Is() compatibility.
func (e *InvalidPortError) Unwrap() error { return ErrInvalidPort }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// IsValid checks the unit entries for blank fields and repeated names.
func (c PersistenceConfig) IsValid() (bool, []error) {
	var errs []error
	seen := make(map[string]bool, len(c.Units))
	for i, u := range c.Units {
		switch {
		case strings.TrimSpace(u.Name) == "":
			errs = append(errs, &InvalidUnitEntryError{Index: i, Name: u.Name, Reason: "name must not be blank"})
		case strings.TrimSpace(u.DSN) == "":
			errs = append(errs, &InvalidUnitEntryError{Index: i, Name: u.Name, Reason: "dsn must not be blank"})
		case seen[u.Name]:
			errs = append(errs, &InvalidUnitEntryError{Index: i, Name: u.Name, Reason: "declared twice"})
		}
		seen[u.Name] = true
	}
	return len(errs) == 0, errs
}

// UnitMap returns the units as a name to DSN map.
func (c PersistenceConfig) UnitMap() map[string]string {
	m := make(map[string]string, len(c.Units))
	for _, u := range c.Units {
		m[u.Name] = u.DSN
	}
	return m
}

// IsValid checks the merge mode and runtime strategy.
// The zero values are valid and mean "use the default".
func (c DeploymentConfig) IsValid() (bool, []error) {
	var errs []error
	if c.MergeMode != "" {
		if valid, fieldErrs := c.MergeMode.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if c.RuntimeStrategy != "" {
		if valid, fieldErrs := c.RuntimeStrategy.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	return len(errs) == 0, errs
}

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Persistence.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Deployment.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		errs = append(errs, &InvalidPortError{Value: c.Admin.Port})
	}
	if c.Admin.TokenTTL < 0 {
		errs = append(errs, &InvalidDurationError{Field: "admin.token_ttl", Value: c.Admin.TokenTTL})
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, &InvalidDurationError{Field: "watch.debounce", Value: c.Watch.Debounce})
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// DefaultConfig returns the default configuration.
// Relative paths are resolved against the working directory.
func DefaultConfig() *Config {
	return &Config{
		Repository: RepositoryConfig{
			Path: "repository",
		},
		Persistence: PersistenceConfig{
			DataDir:     "data",
			Units:       []UnitEntry{},
			DefaultUnit: descriptor.DefaultPersistenceUnit,
		},
		Deployment: DeploymentConfig{
			MergeMode:         descriptor.DefaultMergeMode,
			RuntimeStrategy:   descriptor.StrategySingleton,
			ScanClasspath:     false,
			ValidateProcesses: true,
		},
		Admin: AdminConfig{
			Host:     "127.0.0.1",
			Port:     2222,
			TokenTTL: time.Hour,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: LogLevelInfo,
		},
	}
}
