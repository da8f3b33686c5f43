// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kdeploy/kdeploy/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `kdeploy config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage kdeploy configuration",
		Long: `Manage kdeploy configuration.

Configuration is stored in:
  - Linux: ~/.config/kdeploy/config.cue
  - macOS: ~/Library/Application Support/kdeploy/config.cue
  - Windows: %APPDATA%\kdeploy\config.cue

A config.cue in the working directory is used when none exists there.
Every setting can be overridden with a KDEPLOY_ environment variable,
for example KDEPLOY_ADMIN_PORT=2223.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := showConfig(cmd.Context(), app); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprintf(app.stdout, "%s Configuration file: %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(path))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, path, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}

	out := app.stdout
	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)
	if path != "" {
		fmt.Fprintf(out, "%s: %s\n", CmdStyle.Render("Config file"), path)
	} else {
		fmt.Fprintf(out, "%s: %s\n", CmdStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}

	section(out, "repository")
	entry(out, "path", cfg.Repository.Path)

	section(out, "persistence")
	entry(out, "data_dir", cfg.Persistence.DataDir)
	entry(out, "default_unit", cfg.Persistence.DefaultUnit)
	if len(cfg.Persistence.Units) == 0 {
		fmt.Fprintf(out, "  units: %s\n", SubtitleStyle.Render("(none configured)"))
	} else {
		fmt.Fprintln(out, "  units:")
		for _, u := range cfg.Persistence.Units {
			fmt.Fprintf(out, "    - %s %s\n", SuccessStyle.Render(u.Name), SubtitleStyle.Render(u.DSN))
		}
	}

	section(out, "deployment")
	entry(out, "merge_mode", cfg.Deployment.MergeMode.String())
	entry(out, "runtime_strategy", cfg.Deployment.RuntimeStrategy.String())
	entry(out, "scan_classpath", cfg.Deployment.ScanClasspath)
	entry(out, "validate_processes", cfg.Deployment.ValidateProcesses)
	if cfg.Deployment.Descriptor != "" {
		entry(out, "descriptor", cfg.Deployment.Descriptor)
	}

	section(out, "admin")
	entry(out, "host", cfg.Admin.Host)
	entry(out, "port", cfg.Admin.Port)
	entry(out, "token_ttl", cfg.Admin.TokenTTL)
	if cfg.Admin.HostKeyPath != "" {
		entry(out, "host_key_path", cfg.Admin.HostKeyPath)
	}

	section(out, "watch")
	entry(out, "enabled", cfg.Watch.Enabled)
	entry(out, "debounce", cfg.Watch.Debounce)

	section(out, "log")
	entry(out, "level", cfg.Log.Level.String())

	return nil
}

func section(out io.Writer, name string) {
	fmt.Fprintf(out, "\n%s:\n", CmdStyle.Render(name))
}

func entry(out io.Writer, key string, value any) {
	fmt.Fprintf(out, "  %s: %s\n", key, SuccessStyle.Render(strings.TrimSpace(fmt.Sprint(value))))
}
