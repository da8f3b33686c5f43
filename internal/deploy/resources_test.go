// SPDX-License-Identifier: MPL-2.0

package deploy_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/internal/deploy"
	"github.com/kdeploy/kdeploy/internal/forms"
	"github.com/kdeploy/kdeploy/internal/persistence"
	"github.com/kdeploy/kdeploy/internal/repository"
	"github.com/kdeploy/kdeploy/internal/runtime"
	"github.com/kdeploy/kdeploy/internal/testutil"
	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// bareBuilder returns assets carrying only an id.
type bareBuilder struct{}

func (bareBuilder) Build(string, string, *kmodule.Container, bool) (*deploy.ProcessAsset, error) {
	return &deploy.ProcessAsset{ID: "p"}, nil
}

func TestDeploy_StampsBuiltProcesses(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.NewKjar("org.acme", "m", "1.0").Process("org/acme/p.bpmn", "p").Install(t, root)

	system := classloader.NewRegistry()
	runtime.RegisterHostTypes(system, nil)
	factories := persistence.NewRegistry()
	t.Cleanup(func() { _ = factories.Close() })
	svc := deploy.NewService(repository.New(root, repository.WithSystemClasses(system)), bareBuilder{}, forms.NewRegistrar(), factories)

	u := deploy.NewModuleUnit("org.acme", "m", "1.0")
	du, err := svc.Deploy(context.Background(), u)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	a, ok := du.Asset("p")
	if !ok {
		t.Fatalf("assets = %v, want p", assetIDs(du))
	}
	p := a.(*deploy.ProcessAsset)

	wantSource := base64.StdEncoding.EncodeToString([]byte(testutil.BPMNProcess("p", "p", "1.0")))
	if p.EncodedSource != wantSource {
		t.Errorf("EncodedSource = %q, want the base64 process source", p.EncodedSource)
	}
	if p.DeploymentID() != u.Identifier() || p.OriginalPath != "org/acme/p.bpmn" {
		t.Errorf("process asset = %+v", p)
	}
}

func TestDeploy_KieBaseSelectsModule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	testutil.NewKjar("org.acme", "common", "1.0").
		KieBase("shared", false).
		Process("common.bpmn", "common.p").
		Install(t, f.root)
	testutil.NewKjar("org.acme", "app", "1.0").
		KieBase("main", true).
		DependsOn("org.acme:common:1.0").
		Process("app.bpmn", "app.p").
		Install(t, f.root)

	tests := []struct {
		name  string
		kbase string
		want  []string
	}{
		{name: "default knowledge base of the root", want: []string{"app.p", "common.p"}},
		{name: "knowledge base of a dependency", kbase: "shared", want: []string{"common.p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := deploy.NewModuleUnit("org.acme", "app", "1.0", deploy.WithKieBase(tt.kbase, ""))
			du := f.deploy(t, u)
			t.Cleanup(func() { _ = f.service.Undeploy(context.Background(), u) })

			got := assetIDs(du)
			slices.Sort(got)
			if !slices.Equal(got, tt.want) {
				t.Errorf("assets = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedeploy_FailureIsLogged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := context.Background()
	f := newFixture(t, deploy.WithLogger(log.New(&buf)))
	testutil.NewKjar("org.acme", "m", "1.0").Process("p.bpmn", "p1").Install(t, f.root)

	u := deploy.NewModuleUnit("org.acme", "m", "1.0")
	f.deploy(t, u)

	testutil.NewKjar("org.acme", "m", "1.0").Bytes("p.bpmn", []byte{0xff, 0xfe}).Install(t, f.root)
	if _, err := f.service.Redeploy(ctx, u.Identifier()); !errors.Is(err, deploy.ErrMalformedEncoding) {
		t.Fatalf("Redeploy() error = %v, want ErrMalformedEncoding", err)
	}
	if f.service.Registry().IsDeployed(u.Identifier()) {
		t.Error("failed redeploy should leave the unit undeployed")
	}
	if out := buf.String(); !strings.Contains(out, "redeploy failed") || !strings.Contains(out, u.Identifier()) {
		t.Errorf("log = %q, want the redeploy failure with the unit id", out)
	}
}
