// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kdeploy/kdeploy/internal/config"
	"github.com/kdeploy/kdeploy/internal/deploy"
	"github.com/kdeploy/kdeploy/internal/repository"
	"github.com/kdeploy/kdeploy/internal/testutil"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
)

const descriptorPath = "META-INF/kie-deployment-descriptor.yaml"

type (
	staticConfig struct {
		cfg  *config.Config
		path string
		err  error
	}

	testCLI struct {
		app    *App
		cfg    *config.Config
		dir    string
		stdout *bytes.Buffer
		stderr *bytes.Buffer
	}
)

func (s staticConfig) LoadWithPath(context.Context, config.LoadOptions) (*config.Config, string, error) {
	return s.cfg, s.path, s.err
}

// newTestCLI returns an App whose repository and data directory live in a
// temp dir.
func newTestCLI(t *testing.T) *testCLI {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Repository.Path = filepath.Join(dir, "repository")
	cfg.Persistence.DataDir = filepath.Join(dir, "data")
	cfg.Admin.Port = 0
	cfg.Watch.Enabled = false
	cfg.Log.Level = config.LogLevelError

	c := &testCLI{cfg: cfg, dir: dir, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	app, err := NewApp(Dependencies{Config: staticConfig{cfg: cfg}, Stdout: c.stdout, Stderr: c.stderr})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	c.app = app
	return c
}

func (c *testCLI) run(args ...string) error {
	c.stdout.Reset()
	c.stderr.Reset()
	root := NewRootCommand(c.app)
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	return root.ExecuteContext(context.Background())
}

func (c *testCLI) writeKjar(t *testing.T, k *testutil.Kjar, name string) string {
	t.Helper()
	path := filepath.Join(c.dir, name)
	k.Write(t, path)
	return path
}

func TestInstallDeployList(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	kjar := c.writeKjar(t, testutil.NewKjar("org.acme", "orders", "1.0").Process("org/acme/order.bpmn", "org.acme.order"), "orders.kjar")

	if err := c.run("install", kjar); err != nil {
		t.Fatalf("install error = %v\n%s", err, c.stderr)
	}
	if !strings.Contains(c.stdout.String(), "Installed org.acme:orders:1.0") {
		t.Errorf("install output = %q", c.stdout)
	}

	if err := c.run("deploy", "--keep", "org.acme:orders:1.0"); err != nil {
		t.Fatalf("deploy error = %v\n%s", err, c.stderr)
	}
	out := c.stdout.String()
	for _, want := range []string{"org.acme.order", "Deployed org.acme:orders:1.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("deploy output missing %q:\n%s", want, out)
		}
	}

	if err := c.run("list"); err != nil {
		t.Fatalf("list error = %v", err)
	}
	if out := c.stdout.String(); !strings.Contains(out, "org.acme:orders:1.0") || !strings.Contains(out, deploy.StateActive) {
		t.Errorf("list output = %q", out)
	}

	err := c.run("deploy", "org.acme:orders:1.0")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("second deploy error = %v, want ExitError code 1", err)
	}
	if !errors.Is(err, deploy.ErrAlreadyDeployed) {
		t.Errorf("second deploy error = %v, want ErrAlreadyDeployed", err)
	}
	if !strings.Contains(c.stderr.String(), "Error:") {
		t.Errorf("stderr = %q, want a rendered error", c.stderr)
	}
}

func TestDeploy_WithoutKeepLeavesNoRecord(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	testutil.NewKjar("org.acme", "hr", "1.0").Process("hr.bpmn", "org.acme.hire").Install(t, c.cfg.Repository.Path)

	if err := c.run("deploy", "org.acme:hr:1.0"); err != nil {
		t.Fatalf("deploy error = %v\n%s", err, c.stderr)
	}
	if !strings.Contains(c.stdout.String(), "Deployed and undeployed") {
		t.Errorf("deploy output = %q", c.stdout)
	}

	if err := c.run("list"); err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(c.stdout.String(), "No recorded deployments") {
		t.Errorf("list output = %q", c.stdout)
	}
}

func TestDeploy_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"missing module", []string{"deploy", "org.acme:none:1.0"}, repository.ErrArtifactNotFound},
		{"malformed id", []string{"deploy", "orders"}, deploy.ErrInvalidUnitID},
		{"invalid merge mode", []string{"deploy", "--merge-mode", "SOMETIMES", "org.acme:none:1.0"}, descriptor.ErrInvalidMergeMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestCLI(t)
			err := c.run(tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			var exitErr *ExitError
			if !errors.As(err, &exitErr) {
				t.Errorf("error = %T, want *ExitError", err)
			}
		})
	}
}

func TestDescriptorCommand(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	c.cfg.Deployment.RuntimeStrategy = descriptor.StrategyPerRequest
	testutil.NewKjar("org.acme", "m", "1.0").
		File(descriptorPath, "audit_mode: JMS\n").
		Install(t, c.cfg.Repository.Path)

	if err := c.run("descriptor", "org.acme:m:1.0"); err != nil {
		t.Fatalf("descriptor error = %v\n%s", err, c.stderr)
	}
	out := c.stdout.String()
	for _, want := range []string{"audit_mode: JMS", "runtime_strategy: PER_REQUEST", "persistence_unit: " + descriptor.DefaultPersistenceUnit} {
		if !strings.Contains(out, want) {
			t.Errorf("descriptor output missing %q:\n%s", want, out)
		}
	}

	if err := c.run("descriptor", "--format", "json", "org.acme:m:1.0"); err != nil {
		t.Fatalf("descriptor --format json error = %v", err)
	}
	if !strings.Contains(c.stdout.String(), `"audit_mode": "JMS"`) {
		t.Errorf("json output = %q", c.stdout)
	}

	if err := c.run("descriptor", "--format", "hcl", "org.acme:m:1.0"); !errors.Is(err, descriptor.ErrUnsupportedFormat) {
		t.Errorf("descriptor --format hcl error = %v, want ErrUnsupportedFormat", err)
	}

	if err := c.run("list"); err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(c.stdout.String(), "No recorded deployments") {
		t.Error("descriptor must not deploy the unit")
	}
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	if err := c.run("config", "show"); err != nil {
		t.Fatalf("config show error = %v", err)
	}
	out := c.stdout.String()
	for _, want := range []string{"(using defaults)", "merge_mode", string(descriptor.DefaultMergeMode), "validate_processes", "(none configured)"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigDump(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	if err := c.run("config", "dump"); err != nil {
		t.Fatalf("config dump error = %v", err)
	}
	if got, want := c.stdout.String(), config.GenerateCUE(c.cfg); got != want {
		t.Errorf("config dump = %q, want %q", got, want)
	}
}

func TestConfigLoadFailure(t *testing.T) {
	t.Parallel()

	loadErr := errors.New("broken config")
	stderr := &bytes.Buffer{}
	app, err := NewApp(Dependencies{Config: staticConfig{err: loadErr}, Stdout: &bytes.Buffer{}, Stderr: stderr})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	root := NewRootCommand(app)
	root.SetArgs([]string{"list"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err = root.ExecuteContext(context.Background())

	if !errors.Is(err, loadErr) {
		t.Errorf("error = %v, want %v", err, loadErr)
	}
	if !strings.Contains(stderr.String(), "broken config") {
		t.Errorf("stderr = %q, want the rendered error", stderr)
	}
}
