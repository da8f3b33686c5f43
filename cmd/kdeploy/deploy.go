// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kdeploy/kdeploy/internal/adminserver"
	"github.com/kdeploy/kdeploy/internal/deploy"
	"github.com/kdeploy/kdeploy/internal/issue"
	"github.com/kdeploy/kdeploy/internal/persistence"
	"github.com/kdeploy/kdeploy/pkg/descriptor"

	"github.com/spf13/cobra"
)

func newDeployCommand(app *App) *cobra.Command {
	var (
		keep      bool
		mergeMode string
	)

	cmd := &cobra.Command{
		Use:   "deploy <group:artifact:version[:kbase[:ksession]]>",
		Short: "Deploy a unit and print what it contains",
		Long: `Deploy a unit from the local repository and print its processes and classes.

Without --keep the unit is undeployed again before the command exits, which
makes deploy a dry run of the whole pipeline. With --keep the deployment is
recorded and restored by the next 'kdeploy serve'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withHost(cmd, func(ctx context.Context, h *host) error {
				return runDeploy(ctx, app, h, args[0], descriptor.MergeMode(mergeMode), keep)
			})
		},
	}

	cmd.Flags().BoolVar(&keep, "keep", false, "keep the deployment for the next serve")
	cmd.Flags().StringVar(&mergeMode, "merge-mode", "", "descriptor merge mode (KEEP_ALL, OVERRIDE_ALL, OVERRIDE_EMPTY, MERGE_COLLECTIONS)")

	return cmd
}

func runDeploy(ctx context.Context, app *App, h *host, id string, mode descriptor.MergeMode, keep bool) error {
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

	if _, err := h.store.Get(ctx, u.Identifier()); err == nil {
		return issue.NewErrorContext().
			WithOperation("deploy unit").
			WithResource(u.Identifier()).
			WithSuggestion("Undeploy it from the admin console of 'kdeploy serve' first").
			WithIssue(issue.AlreadyDeployedId).
			Wrap(deploy.ErrAlreadyDeployed).
			Build()
	} else if !errors.Is(err, persistence.ErrRecordNotFound) {
		return err
	}

	du, err := h.service.Deploy(ctx, u)
	if err != nil {
		return err
	}
	if code := adminserver.Execute(ctx, h.service, []string{"show", du.Identifier()}, app.stdout, app.stderr); code != adminserver.ExitOK {
		h.logger.Warn("printing deployment summary failed", "unit", du.Identifier(), "exit", code)
	}

	if keep {
		fmt.Fprintf(app.stdout, "\n%s Deployed %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(du.Identifier()))
		return nil
	}
	if err := h.service.Undeploy(ctx, u); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "\n%s Deployed and undeployed %s %s\n",
		SuccessStyle.Render("✓"), CmdStyle.Render(du.Identifier()), SubtitleStyle.Render("(use --keep to keep it)"))
	return nil
}
