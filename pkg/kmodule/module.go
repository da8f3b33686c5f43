// SPDX-License-Identifier: MPL-2.0

package kmodule

import (
	"fmt"
	"io/fs"
	"maps"
	"slices"
)

// Module is a resolved module: its archive content, its resolved module
// dependencies, and the file locations of its external jars. A Module is
// immutable once built and safe for concurrent use.
type Module struct {
	releaseID ReleaseID
	archive   *Archive
	names     []string
	deps      []*Module
	jars      []string
}

// NewModule assembles a resolved module.
func NewModule(id ReleaseID, archive *Archive, deps []*Module, jars []string) *Module {
	return &Module{
		releaseID: id,
		archive:   archive,
		names:     slices.Sorted(maps.Keys(archive.Files)),
		deps:      slices.Clone(deps),
		jars:      slices.Clone(jars),
	}
}

// ReleaseID returns the canonical release id of the module.
func (m *Module) ReleaseID() ReleaseID { return m.releaseID }

// Name implements classloader.Resources.
func (m *Module) Name() string { return m.releaseID.String() }

// Path returns the archive location, empty for synthetic modules.
func (m *Module) Path() string { return m.archive.Path }

// Model returns the parsed module model.
func (m *Module) Model() *Model { return m.archive.Model }

// FileNames returns every file path in the module, sorted.
func (m *Module) FileNames() []string { return slices.Clone(m.names) }

// Bytes returns the content of one file.
func (m *Module) Bytes(path string) ([]byte, error) {
	data, ok := m.archive.Files[path]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", path, m.releaseID, fs.ErrNotExist)
	}
	return data, nil
}

// Has reports whether the module contains a file.
func (m *Module) Has(path string) bool {
	_, ok := m.archive.Files[path]
	return ok
}

// Dependencies returns the direct module dependencies.
func (m *Module) Dependencies() []*Module { return slices.Clone(m.deps) }

// JarDependencies returns the file locations of the external jars declared
// by the module.
func (m *Module) JarDependencies() []string { return slices.Clone(m.jars) }

// TransitiveDependencies returns every module reachable from m, breadth
// first, each release once, excluding m itself.
func (m *Module) TransitiveDependencies() []*Module {
	seen := map[ReleaseID]bool{m.releaseID: true}
	var out []*Module
	queue := slices.Clone(m.deps)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if seen[dep.releaseID] {
			continue
		}
		seen[dep.releaseID] = true
		out = append(out, dep)
		queue = append(queue, dep.deps...)
	}
	return out
}

// AllJarDependencies returns the external jars of m and of its transitive
// dependencies, without duplicates, in discovery order.
func (m *Module) AllJarDependencies() []string {
	var jars []string
	for _, mod := range append([]*Module{m}, m.TransitiveDependencies()...) {
		for _, j := range mod.jars {
			if !slices.Contains(jars, j) {
				jars = append(jars, j)
			}
		}
	}
	return jars
}
