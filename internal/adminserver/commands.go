// SPDX-License-Identifier: MPL-2.0

package adminserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"github.com/kdeploy/kdeploy/internal/deploy"
)

// Exit codes returned to SSH clients.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

const usage = `usage: <command> [args]

commands:
  list                 list deployed units
  show <id>            show a deployed unit
  deploy <unit-id>     deploy group:artifact:version[:kbase[:ksession]]
  undeploy <id>        undeploy a unit
  redeploy <id>        undeploy and deploy a unit again
  activate <id>        activate a unit
  deactivate <id>      deactivate a unit
`

var (
	errUnknownDeployment = errors.New("unknown deployment")

	headerStyle = lipgloss.NewStyle().Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type command struct {
	args int
	run  func(ctx context.Context, d Deployer, args []string, out io.Writer) error
}

var commands = map[string]command{
	"list":       {args: 0, run: runList},
	"show":       {args: 1, run: runShow},
	"deploy":     {args: 1, run: runDeploy},
	"undeploy":   {args: 1, run: runUndeploy},
	"redeploy":   {args: 1, run: runRedeploy},
	"activate":   {args: 1, run: runActivate},
	"deactivate": {args: 1, run: runDeactivate},
}

// commandMiddleware runs the session command against the deployer.
func (s *Server) commandMiddleware() wish.Middleware {
	return func(ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			operator, _ := sess.Context().Value(ctxKeyOperator).(string)
			args := sess.Command()
			code := Execute(sess.Context(), s.deployer, args, sess, sess.Stderr())
			s.logger.Info("admin command", "operator", operator, "command", strings.Join(args, " "), "exit", code)
			_ = sess.Exit(code)
		}
	}
}

// Execute runs one console command and returns its exit code. Results go
// to out, errors and usage to errOut.
func Execute(ctx context.Context, d Deployer, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		_, _ = io.WriteString(errOut, usage)
		return ExitUsage
	}
	if args[0] == "help" {
		_, _ = io.WriteString(out, usage)
		return ExitOK
	}

	cmd, ok := commands[args[0]]
	if !ok {
		_, _ = fmt.Fprintf(errOut, "unknown command %q\n\n%s", args[0], usage)
		return ExitUsage
	}
	if len(args)-1 != cmd.args {
		_, _ = fmt.Fprintf(errOut, "%s: expected %d argument(s), got %d\n\n%s", args[0], cmd.args, len(args)-1, usage)
		return ExitUsage
	}

	if err := cmd.run(ctx, d, args[1:], out); err != nil {
		_, _ = fmt.Fprintf(errOut, "%s: %v\n", args[0], err)
		return ExitFailure
	}
	return ExitOK
}

func runList(_ context.Context, d Deployer, _ []string, out io.Writer) error {
	units := d.Registry().List()
	if len(units) == 0 {
		_, err := io.WriteString(out, "no deployments\n")
		return err
	}

	width := len("UNIT")
	for _, du := range units {
		width = max(width, len(du.Identifier()))
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %-8s  %9s  %7s", width, "UNIT", "STATE", "PROCESSES", "CLASSES")))
	b.WriteByte('\n')
	for _, du := range units {
		fmt.Fprintf(&b, "%-*s  %s  %9d  %7d\n",
			width, du.Identifier(), state(du), len(du.Assets()), len(du.ClassNames()))
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func runShow(_ context.Context, d Deployer, args []string, out io.Writer) error {
	du, ok := d.Registry().Get(args[0])
	if !ok {
		return fmt.Errorf("%s: %w", args[0], errUnknownDeployment)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("unit:"), du.Identifier())
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("state:"), state(du))
	if mu, ok := du.Unit().(*deploy.ModuleUnit); ok {
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("strategy:"), mu.RuntimeStrategy())
	}
	if m := du.RuntimeManager(); m != nil {
		fmt.Fprintf(&b, "%s %d\n", headerStyle.Render("engines:"), m.Engines())
	}

	b.WriteString(headerStyle.Render("processes:"))
	b.WriteByte('\n')
	for _, a := range du.Assets() {
		fmt.Fprintf(&b, "  %s", a.AssetID())
		if p, ok := a.(*deploy.ProcessAsset); ok && p.Version != "" {
			fmt.Fprintf(&b, " (%s)", p.Version)
		}
		if roles := a.Roles(); len(roles) > 0 {
			fmt.Fprintf(&b, " roles=%s", strings.Join(roles, ","))
		}
		b.WriteByte('\n')
	}

	b.WriteString(headerStyle.Render("classes:"))
	b.WriteByte('\n')
	for _, name := range du.ClassNames() {
		fmt.Fprintf(&b, "  %s\n", name)
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func runDeploy(ctx context.Context, d Deployer, args []string, out io.Writer) error {
	u, err := deploy.ParseUnitID(args[0])
	if err != nil {
		return err
	}
	du, err := d.Deploy(ctx, u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "deployed %s (%d processes)\n", du.Identifier(), len(du.Assets()))
	return err
}

func runUndeploy(ctx context.Context, d Deployer, args []string, out io.Writer) error {
	du, ok := d.Registry().Get(args[0])
	if !ok {
		return fmt.Errorf("%s: %w", args[0], errUnknownDeployment)
	}
	if err := d.Undeploy(ctx, du.Unit()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "undeployed %s\n", args[0])
	return err
}

func runRedeploy(ctx context.Context, d Deployer, args []string, out io.Writer) error {
	du, err := d.Redeploy(ctx, args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "redeployed %s (%d processes)\n", du.Identifier(), len(du.Assets()))
	return err
}

func runActivate(ctx context.Context, d Deployer, args []string, out io.Writer) error {
	if !d.Activate(ctx, args[0]) {
		return fmt.Errorf("%s: %w", args[0], errUnknownDeployment)
	}
	_, err := fmt.Fprintf(out, "activated %s\n", args[0])
	return err
}

func runDeactivate(ctx context.Context, d Deployer, args []string, out io.Writer) error {
	if !d.Deactivate(ctx, args[0]) {
		return fmt.Errorf("%s: %w", args[0], errUnknownDeployment)
	}
	_, err := fmt.Fprintf(out, "deactivated %s\n", args[0])
	return err
}

func state(du *deploy.DeployedUnit) string {
	if du.Active() {
		return activeStyle.Render(fmt.Sprintf("%-8s", deploy.StateActive))
	}
	return idleStyle.Render(fmt.Sprintf("%-8s", deploy.StateInactive))
}
