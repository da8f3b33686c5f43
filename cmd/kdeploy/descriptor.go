// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/kdeploy/kdeploy/internal/deploy"
	"github.com/kdeploy/kdeploy/pkg/descriptor"

	"github.com/spf13/cobra"
)

func newDescriptorCommand(app *App) *cobra.Command {
	var (
		format    string
		mergeMode string
	)

	cmd := &cobra.Command{
		Use:   "descriptor <group:artifact:version>",
		Short: "Print the effective deployment descriptor of a unit",
		Long: `Print the deployment descriptor a unit would be deployed with: the host
default merged with the descriptors of the module and its dependencies.
Nothing is deployed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withHost(cmd, func(ctx context.Context, h *host) error {
				return printDescriptor(ctx, app, h, args[0], descriptor.Format(format), descriptor.MergeMode(mergeMode))
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(descriptor.FormatYAML), "output format (yaml, json, toml)")
	cmd.Flags().StringVar(&mergeMode, "merge-mode", "", "descriptor merge mode (KEEP_ALL, OVERRIDE_ALL, OVERRIDE_EMPTY, MERGE_COLLECTIONS)")

	return cmd
}

func printDescriptor(ctx context.Context, app *App, h *host, id string, format descriptor.Format, mode descriptor.MergeMode) error {
	var opts []deploy.UnitOption
	if mode != "" {
		if ok, errs := mode.IsValid(); !ok {
			return errs[0]
		}
		opts = append(opts, deploy.WithMergeMode(mode))
	}
	u, err := deploy.ParseUnitID(id, opts...)
	if err != nil {
		return err
	}

	d, err := h.service.EffectiveDescriptor(ctx, u)
	if err != nil {
		return err
	}
	out, err := descriptor.Marshal(d, format)
	if err != nil {
		return err
	}
	fmt.Fprint(app.stdout, string(out))
	return nil
}
