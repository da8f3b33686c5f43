// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/kdeploy/kdeploy/internal/deploy"

	"github.com/spf13/cobra"
)

func newListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments",
		Long:  "List the deployments kept in the deployment store. 'kdeploy serve' restores them on start.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withHost(cmd, func(ctx context.Context, h *host) error {
				return listDeployments(ctx, app, h)
			})
		},
	}
}

func listDeployments(ctx context.Context, app *App, h *host) error {
	records, err := h.store.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("No recorded deployments"))
		return nil
	}

	width := len("UNIT")
	for _, rec := range records {
		width = max(width, len(rec.ID))
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%-*s  %-8s  %-20s  %s", width, "UNIT", "STATE", "STRATEGY", "DEPLOYED")))
	b.WriteByte('\n')
	for _, rec := range records {
		state := SuccessStyle.Render(fmt.Sprintf("%-8s", rec.State))
		if rec.State == deploy.StateInactive {
			state = SubtitleStyle.Render(fmt.Sprintf("%-8s", rec.State))
		}
		fmt.Fprintf(&b, "%s  %s  %-20s  %s\n",
			CmdStyle.Render(fmt.Sprintf("%-*s", width, rec.ID)), state, rec.Strategy, rec.DeployedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprint(app.stdout, b.String())
	return nil
}
