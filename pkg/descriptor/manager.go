// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"fmt"

	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// Manager builds descriptor hierarchies for module containers.
type Manager struct {
	defaultDescriptor *Descriptor
}

// NewManager creates a manager whose lowest-precedence descriptor is the
// host default for persistenceUnit.
func NewManager(persistenceUnit string) *Manager {
	return &Manager{defaultDescriptor: Default(persistenceUnit)}
}

// NewManagerWithDefault creates a manager with d as the host default.
func NewManagerWithDefault(d *Descriptor) *Manager {
	return &Manager{defaultDescriptor: d.Clone()}
}

// Default returns a copy of the host default descriptor.
func (m *Manager) Default() *Descriptor { return m.defaultDescriptor.Clone() }

// FromModule returns the descriptor packaged in a module, or nil when the
// module carries none. The first existing candidate path wins.
func (m *Manager) FromModule(mod *kmodule.Module) (*Descriptor, error) {
	for _, p := range candidatePaths {
		if !mod.Has(p) {
			continue
		}
		data, err := mod.Bytes(p)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", mod.Name(), err)
		}
		d, err := ParseFile(data, p)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", mod.Name(), err)
		}
		return d, nil
	}
	return nil, nil
}

// Hierarchy returns the descriptors that apply to a container, highest
// precedence first: the root module, its transitive dependencies
// breadth-first, and the host default last. Modules without a descriptor
// are skipped.
func (m *Manager) Hierarchy(c *kmodule.Container) ([]*Descriptor, error) {
	root := c.Module()
	modules := append([]*kmodule.Module{root}, root.TransitiveDependencies()...)

	hierarchy := make([]*Descriptor, 0, len(modules)+1)
	for _, mod := range modules {
		d, err := m.FromModule(mod)
		if err != nil {
			return nil, err
		}
		if d != nil {
			hierarchy = append(hierarchy, d)
		}
	}
	return append(hierarchy, m.Default()), nil
}
