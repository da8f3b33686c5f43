// SPDX-License-Identifier: MPL-2.0

package kmodule_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/kdeploy/kdeploy/internal/testutil"
	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

func buildModule(t *testing.T, k *testutil.Kjar, deps ...*kmodule.Module) *kmodule.Module {
	t.Helper()
	a, err := kmodule.NewArchive(k.Files())
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}
	return kmodule.NewModule(*a.Model.Release, a, deps, nil)
}

func TestContainer_KieBases(t *testing.T) {
	t.Parallel()

	common := buildModule(t, testutil.NewKjar("org.acme", "common", "1.0").
		KieBase("shared", false).
		Class("org.acme.common.Money"))
	hr := buildModule(t, testutil.NewKjar("org.acme", "hr", "1.0").
		KieBase("hr", true, "org.acme.hr").
		Process("org/acme/hr/hiring.bpmn2", "hiring").
		Process("org/acme/other/x.bpmn2", "x"), common)

	c := kmodule.NewContainer(hr, nil)

	kb, ok, err := c.DefaultKieBase()
	if err != nil || !ok || kb.Name() != "hr" {
		t.Fatalf("DefaultKieBase() = %v, %v, %v", kb, ok, err)
	}
	if got := kb.Resources(); !slices.Equal(got, []string{"org/acme/hr/hiring.bpmn2"}) {
		t.Errorf("Resources() = %v", got)
	}

	mod, err := c.ModuleForKieBase("shared")
	if err != nil || mod != common {
		t.Errorf("ModuleForKieBase(shared) = %v, %v", mod, err)
	}

	_, err = c.KieBase("missing")
	var nf *kmodule.KieBaseNotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, kmodule.ErrKieBaseNotFound) {
		t.Errorf("KieBase(missing) error = %v", err)
	}

	if _, err := c.ClassLoader().LoadClass("org.acme.common.Money"); err != nil {
		t.Errorf("dependency classes should be visible: %v", err)
	}
	if c.ReleaseID().String() != "org.acme:hr:1.0" {
		t.Errorf("ReleaseID() = %v", c.ReleaseID())
	}
}

func TestContainer_AmbiguousDefault(t *testing.T) {
	t.Parallel()

	m := buildModule(t, testutil.NewKjar("org.acme", "twice", "1.0").
		KieBase("a", true).
		KieBase("b", true))

	_, _, err := kmodule.NewContainer(m, classloader.NewRegistry()).DefaultKieBase()
	if !errors.Is(err, kmodule.ErrAmbiguousDefaultKieBase) {
		t.Errorf("DefaultKieBase() error = %v, want ErrAmbiguousDefaultKieBase", err)
	}
}

func TestContainer_ImplicitDefaultsShareAName(t *testing.T) {
	t.Parallel()

	base := buildModule(t, testutil.NewKjar("org.acme", "base", "1.0"))
	root := buildModule(t, testutil.NewKjar("org.acme", "app", "1.0"), base)

	kb, ok, err := kmodule.NewContainer(root, nil).DefaultKieBase()
	if err != nil || !ok {
		t.Fatalf("DefaultKieBase() = %v, %v", ok, err)
	}
	if kb.Name() != kmodule.DefaultKieBaseName || kb.Module != root {
		t.Errorf("DefaultKieBase() = %s from %s, want the root module's implicit kbase", kb.Name(), kb.Module.Name())
	}
}

func TestContainer_NoDefault(t *testing.T) {
	t.Parallel()

	m := buildModule(t, testutil.NewKjar("org.acme", "plain", "1.0").KieBase("a", false))
	_, ok, err := kmodule.NewContainer(m, nil).DefaultKieBase()
	if ok || err != nil {
		t.Errorf("DefaultKieBase() = %v, %v; want none", ok, err)
	}
}

func TestModule_TransitiveDependencies(t *testing.T) {
	t.Parallel()

	base := buildModule(t, testutil.NewKjar("org.acme", "base", "1.0"))
	left := buildModule(t, testutil.NewKjar("org.acme", "left", "1.0"), base)
	right := buildModule(t, testutil.NewKjar("org.acme", "right", "1.0"), base)
	root := buildModule(t, testutil.NewKjar("org.acme", "root", "1.0"), left, right)

	var got []string
	for _, m := range root.TransitiveDependencies() {
		got = append(got, string(m.ReleaseID().ArtifactID))
	}
	if want := []string{"left", "right", "base"}; !slices.Equal(got, want) {
		t.Errorf("TransitiveDependencies() = %v, want %v", got, want)
	}
}
