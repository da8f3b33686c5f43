// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kdeploy/kdeploy/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kdeploy",
		Short: "Deploy business process modules",
		Long: TitleStyle.Render("kdeploy") + SubtitleStyle.Render(" - Deploy business process modules") + `

kdeploy resolves knowledge modules (kjars) from a local repository,
merges their deployment descriptors, builds a runtime environment for
each unit and keeps a registry of what is deployed.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Install a module:     kdeploy install orders-1.0.kjar
  2. Check the descriptor: kdeploy descriptor org.acme:orders:1.0
  3. Deploy and serve:     kdeploy deploy --keep org.acme:orders:1.0 && kdeploy serve

` + SubtitleStyle.Render("Examples:") + `
  kdeploy list                      Show recorded deployments
  kdeploy deploy org.acme:orders:1.0
  kdeploy serve                     Start the admin console and watcher
  kdeploy config show               Show current configuration`,
	}

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is $HOME/.config/kdeploy/config.cue)")

	rootCmd.AddCommand(
		newInstallCommand(app),
		newDeployCommand(app),
		newListCommand(app),
		newDescriptorCommand(app),
		newServeCommand(app),
		newConfigCommand(app),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute builds the App and runs the root command. It is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}

	// fang overrides rootCmd.Version, so the version goes through fang.WithVersion.
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display.
// ActionableErrors use their Format method; verbose adds the error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
