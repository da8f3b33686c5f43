// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/kdeploy/kdeploy/internal/issue"

	"github.com/spf13/cobra"
)

func newInstallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "install <kjar>...",
		Short: "Install kjars into the local repository",
		Long: `Install one or more kjars into the local repository.

The release id is read from the module model inside each archive; the
archive is stored under group/artifact/version in repository.path.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withHost(cmd, func(ctx context.Context, h *host) error {
				for _, path := range args {
					id, err := h.repo.Install(ctx, path)
					if err != nil {
						return issue.NewErrorContext().
							WithOperation("install module").
							WithResource(path).
							WithSuggestion("Check that the file is a kjar with a module model").
							Wrap(err).
							Build()
					}
					fmt.Fprintf(app.stdout, "%s Installed %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(id.String()))
				}
				return nil
			})
		},
	}
}
