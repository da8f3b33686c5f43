// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/kdeploy/kdeploy/internal/adminserver"
	"github.com/kdeploy/kdeploy/internal/issue"
	"github.com/kdeploy/kdeploy/internal/watch"

	"github.com/spf13/cobra"
)

func newServeCommand(app *App) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Restore deployments and run the admin console",
		Long: `Restore the recorded deployments, start the SSH admin console and watch the
repository for updated kjars until interrupted.

Connect with the printed ssh command and use the token as password. The
console accepts one command per session: list, show, deploy, undeploy,
redeploy, activate and deactivate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withHost(cmd, func(ctx context.Context, h *host) error {
				return runServe(ctx, app, h, !noWatch && h.cfg.Watch.Enabled)
			})
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not redeploy units when their kjars change")

	return cmd
}

func runServe(ctx context.Context, app *App, h *host, watchRepo bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	restored, err := h.service.Restore(ctx)
	if err != nil {
		h.logger.Warn("some deployments could not be restored", "err", err)
	}
	if len(restored) > 0 {
		fmt.Fprintf(app.stdout, "%s Restored %d deployment(s)\n", SuccessStyle.Render("✓"), len(restored))
	}

	adminCfg := adminserver.DefaultConfig()
	adminCfg.Host = adminserver.HostAddress(h.cfg.Admin.Host)
	adminCfg.Port = adminserver.ListenPort(h.cfg.Admin.Port)
	adminCfg.TokenTTL = h.cfg.Admin.TokenTTL
	adminCfg.HostKeyPath = h.cfg.Admin.HostKeyPath

	srv, err := adminserver.New(adminCfg, h.service, adminserver.WithLogger(h.logger))
	if err != nil {
		return adminServerError(adminCfg, err)
	}
	if err := srv.Start(ctx); err != nil {
		return adminServerError(adminCfg, err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			h.logger.Warn("stopping admin server failed", "err", err)
		}
	}()

	info, err := srv.ConnectionInfo(operatorName())
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s Admin console listening on %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(srv.Address()))
	fmt.Fprintf(app.stdout, "  %s ssh -p %d %s@%s <command>\n", SubtitleStyle.Render("connect:"), info.Port, info.User, info.Host)
	fmt.Fprintf(app.stdout, "  %s %s %s\n", SubtitleStyle.Render("token:"), info.Token,
		SubtitleStyle.Render("(expires "+info.ExpireAt.Local().Format("15:04:05")+")"))

	watchDone := make(chan error, 1)
	if watchRepo {
		w, err := newRepositoryWatcher(h)
		if err != nil {
			return issue.NewErrorContext().
				WithOperation("watch repository").
				WithResource(h.repo.Root()).
				WithSuggestion("Run with --no-watch or set watch.enabled to false").
				WithIssue(issue.WatchFailedId).
				Wrap(err).
				Build()
		}
		go func() { watchDone <- w.Run(ctx) }()
		fmt.Fprintf(app.stdout, "%s Watching %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(h.repo.Root()))
	}

	select {
	case <-ctx.Done():
		h.logger.Info("shutting down")
		return nil
	case err := <-srv.Err():
		return adminServerError(adminCfg, err)
	case err := <-watchDone:
		if err != nil {
			return issue.NewErrorContext().
				WithOperation("watch repository").
				WithResource(h.repo.Root()).
				WithIssue(issue.WatchFailedId).
				Wrap(err).
				Build()
		}
		return nil
	}
}

// newRepositoryWatcher redeploys the units whose kjars change in the repository.
func newRepositoryWatcher(h *host) (*watch.Watcher, error) {
	if err := os.MkdirAll(h.repo.Root(), 0o755); err != nil {
		return nil, err
	}
	return watch.New(watch.Config{
		Root:      h.repo.Root(),
		Debounce:  h.cfg.Watch.Debounce,
		ReleaseID: h.repo.ReleaseIDFromPath,
		Deployed: func() []string {
			units := h.service.Registry().List()
			ids := make([]string, len(units))
			for i, du := range units {
				ids[i] = du.Identifier()
			}
			return ids
		},
		Redeploy: func(ctx context.Context, id string) error {
			_, err := h.service.Redeploy(ctx, id)
			return err
		},
		Logger: h.logger,
	})
}

func adminServerError(cfg adminserver.Config, err error) error {
	return issue.NewErrorContext().
		WithOperation("start admin server").
		WithResource(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).
		WithSuggestions(
			"Pick a free port with admin.port, or 0 for any free port",
			"Check that admin.host_key_path is readable",
		).
		WithIssue(issue.AdminServerStartFailedId).
		Wrap(err).
		Build()
}

// operatorName is the operator recorded on the console token.
func operatorName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "operator"
}
