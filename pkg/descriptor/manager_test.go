// SPDX-License-Identifier: MPL-2.0

package descriptor_test

import (
	"testing"

	"github.com/kdeploy/kdeploy/internal/testutil"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

func newModule(t *testing.T, k *testutil.Kjar, deps ...*kmodule.Module) *kmodule.Module {
	t.Helper()
	a, err := kmodule.NewArchive(k.Files())
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}
	return kmodule.NewModule(*a.Model.Release, a, deps, nil)
}

func TestManager_Hierarchy(t *testing.T) {
	t.Parallel()

	base := newModule(t, testutil.NewKjar("org.acme", "base", "1.0").
		File("META-INF/kie-deployment-descriptor.json", `{"audit_mode": "JMS", "runtime_strategy": "PER_PROCESS_INSTANCE"}`))
	plain := newModule(t, testutil.NewKjar("org.acme", "plain", "1.0"), base)
	root := newModule(t, testutil.NewKjar("org.acme", "app", "1.0").
		File("META-INF/kie-deployment-descriptor.yaml", "runtime_strategy: PER_REQUEST\n").
		File("META-INF/kie-deployment-descriptor.json", `{"runtime_strategy": "SINGLETON"}`), plain)

	m := descriptor.NewManager("org.acme.pu")
	hierarchy, err := m.Hierarchy(kmodule.NewContainer(root, nil))
	if err != nil {
		t.Fatalf("Hierarchy() error = %v", err)
	}
	if len(hierarchy) != 3 {
		t.Fatalf("len(Hierarchy()) = %d, want root, base and default", len(hierarchy))
	}
	if hierarchy[0].RuntimeStrategy != descriptor.StrategyPerRequest {
		t.Errorf("root descriptor strategy = %s, want the YAML file to win over JSON", hierarchy[0].RuntimeStrategy)
	}
	if hierarchy[1].AuditMode != descriptor.AuditJMS {
		t.Errorf("dependency descriptor audit mode = %s", hierarchy[1].AuditMode)
	}
	if last := hierarchy[2]; last.PersistenceUnit != "org.acme.pu" || last.PersistenceMode != descriptor.PersistenceJPA {
		t.Errorf("default descriptor = %+v", last)
	}

	merged, err := descriptor.Merge(hierarchy, descriptor.MergeCollections)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if merged.RuntimeStrategy != descriptor.StrategyPerRequest || merged.AuditMode != descriptor.AuditJMS {
		t.Errorf("merged = %+v", merged)
	}
	if merged.PersistenceUnit != "org.acme.pu" {
		t.Errorf("merged persistence unit = %q", merged.PersistenceUnit)
	}
}

func TestManager_BrokenDescriptor(t *testing.T) {
	t.Parallel()

	root := newModule(t, testutil.NewKjar("org.acme", "broken", "1.0").
		File("META-INF/kie-deployment-descriptor.toml", "runtime_strategy = \"NEVER\"\n"))

	if _, err := descriptor.NewManager("").Hierarchy(kmodule.NewContainer(root, nil)); err == nil {
		t.Error("Hierarchy() expected error for invalid descriptor")
	}
}

func TestManager_DefaultIsACopy(t *testing.T) {
	t.Parallel()

	m := descriptor.NewManager("")
	d := m.Default()
	d.PersistenceUnit = "changed"
	if got := m.Default().PersistenceUnit; got != descriptor.DefaultPersistenceUnit {
		t.Errorf("Default().PersistenceUnit = %q after mutation", got)
	}
}

func TestNewManagerWithDefault(t *testing.T) {
	t.Parallel()

	def := descriptor.Default("org.acme.domain")
	def.RuntimeStrategy = descriptor.StrategyPerRequest
	m := descriptor.NewManagerWithDefault(def)
	def.RuntimeStrategy = descriptor.StrategyPerProcessInstance

	got := m.Default()
	if got.RuntimeStrategy != descriptor.StrategyPerRequest {
		t.Errorf("RuntimeStrategy = %q, want %q", got.RuntimeStrategy, descriptor.StrategyPerRequest)
	}
	if got.PersistenceUnit != "org.acme.domain" {
		t.Errorf("PersistenceUnit = %q, want org.acme.domain", got.PersistenceUnit)
	}
}
