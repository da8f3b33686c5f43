// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/kdeploy/kdeploy/internal/issue"
	"github.com/kdeploy/kdeploy/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "kdeploy"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "KDEPLOY"
)

var (
	//go:embed config_schema.cue
	configSchema string

	configDefinition = cueutil.MustCompile([]byte(configSchema), "#Config")
)

// ConfigDir returns the kdeploy configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// newViper returns a Viper instance carrying the defaults and env bindings.
func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("repository.path", defaults.Repository.Path)
	v.SetDefault("persistence.data_dir", defaults.Persistence.DataDir)
	v.SetDefault("persistence.units", defaults.Persistence.Units)
	v.SetDefault("persistence.default_unit", defaults.Persistence.DefaultUnit)
	v.SetDefault("deployment.merge_mode", string(defaults.Deployment.MergeMode))
	v.SetDefault("deployment.runtime_strategy", string(defaults.Deployment.RuntimeStrategy))
	v.SetDefault("deployment.scan_classpath", defaults.Deployment.ScanClasspath)
	v.SetDefault("deployment.validate_processes", defaults.Deployment.ValidateProcesses)
	v.SetDefault("deployment.descriptor", defaults.Deployment.Descriptor)
	v.SetDefault("admin.host", defaults.Admin.Host)
	v.SetDefault("admin.port", defaults.Admin.Port)
	v.SetDefault("admin.token_ttl", defaults.Admin.TokenTTL)
	v.SetDefault("admin.host_key_path", defaults.Admin.HostKeyPath)
	v.SetDefault("watch.enabled", defaults.Watch.Enabled)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("log.level", string(defaults.Log.Level))

	// KDEPLOY_ADMIN_PORT overrides admin.port. Only keys with a default are bound.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()
	resolvedPath := ""

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'kdeploy config init' to write a default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", cueLoadError(opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}

		for _, candidate := range []string{
			filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
			ConfigFileName + "." + ConfigFileExt,
		} {
			if !fileExists(candidate) {
				continue
			}
			if err := loadCUEIntoViper(v, candidate); err != nil {
				return nil, "", cueLoadError(candidate, err)
			}
			resolvedPath = candidate
			break
		}
		// No config file found: defaults and environment only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("parse configuration").
			WithResource(resolvedPath).
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check values overridden through KDEPLOY_ environment variables").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func cueLoadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithSuggestion("See 'kdeploy config show' for the effective configuration").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// The file decodes to a map rather than a struct so Viper keeps its defaults
// and environment overrides for keys the file does not set.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	configMap, err := configDefinition.DecodeMap(data, cueutil.WithFilename(path), cueutil.WithConcrete(false))
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default config file if none exists and
// returns its path.
func CreateDefaultConfig() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// Save writes the configuration to the config directory.
func Save(cfg *Config) error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the configuration.
// Empty optional strings are omitted so the output validates against the schema.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// kdeploy configuration file\n")
	sb.WriteString("// See https://github.com/kdeploy/kdeploy for documentation.\n\n")

	sb.WriteString("repository: {\n")
	writeString(&sb, 1, "path", cfg.Repository.Path)
	sb.WriteString("}\n")

	sb.WriteString("\npersistence: {\n")
	writeString(&sb, 1, "data_dir", cfg.Persistence.DataDir)
	writeString(&sb, 1, "default_unit", cfg.Persistence.DefaultUnit)
	if len(cfg.Persistence.Units) > 0 {
		sb.WriteString("\tunits: [\n")
		for _, u := range cfg.Persistence.Units {
			fmt.Fprintf(&sb, "\t\t{name: %q, dsn: %q},\n", u.Name, u.DSN)
		}
		sb.WriteString("\t]\n")
	}
	sb.WriteString("}\n")

	sb.WriteString("\ndeployment: {\n")
	writeString(&sb, 1, "merge_mode", string(cfg.Deployment.MergeMode))
	writeString(&sb, 1, "runtime_strategy", string(cfg.Deployment.RuntimeStrategy))
	fmt.Fprintf(&sb, "\tscan_classpath: %v\n", cfg.Deployment.ScanClasspath)
	fmt.Fprintf(&sb, "\tvalidate_processes: %v\n", cfg.Deployment.ValidateProcesses)
	writeString(&sb, 1, "descriptor", cfg.Deployment.Descriptor)
	sb.WriteString("}\n")

	sb.WriteString("\nadmin: {\n")
	writeString(&sb, 1, "host", cfg.Admin.Host)
	fmt.Fprintf(&sb, "\tport: %d\n", cfg.Admin.Port)
	fmt.Fprintf(&sb, "\ttoken_ttl: %q\n", cfg.Admin.TokenTTL.String())
	writeString(&sb, 1, "host_key_path", cfg.Admin.HostKeyPath)
	sb.WriteString("}\n")

	sb.WriteString("\nwatch: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.Watch.Enabled)
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Watch.Debounce.String())
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	writeString(&sb, 1, "level", string(cfg.Log.Level))
	sb.WriteString("}\n")

	return sb.String()
}

func writeString(sb *strings.Builder, depth int, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "%s%s: %q\n", strings.Repeat("\t", depth), key, value)
}
