// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/kdeploy/kdeploy/internal/config"

	"github.com/charmbracelet/log"
)

type (
	// App wires CLI services and shared dependencies. It is the composition root
	// for the CLI layer: every Cobra handler receives an App and builds the
	// deployment host through it.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer

		// Bound to the persistent root flags.
		verbose    bool
		configPath string
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Stdout io.Writer
		Stderr io.Writer
	}

	// ConfigProvider loads configuration using explicit options and reports
	// the file it was read from.
	ConfigProvider interface {
		LoadWithPath(ctx context.Context, opts config.LoadOptions) (*config.Config, string, error)
	}
)

// NewApp creates an App, filling nil dependencies with production defaults.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}

	return &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}, nil
}

// loadConfig loads the configuration honoring the --config flag.
// The resolved path is empty when defaults are in use.
func (a *App) loadConfig(ctx context.Context) (*config.Config, string, error) {
	return a.Config.LoadWithPath(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
}

// newLogger builds the process logger. --verbose forces debug level.
func (a *App) newLogger(cfg *config.Config) *log.Logger {
	level, err := log.ParseLevel(cfg.Log.Level.String())
	if err != nil {
		level = log.InfoLevel
	}
	if a.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Level:           level,
		Prefix:          "kdeploy",
		ReportTimestamp: true,
	})
}
