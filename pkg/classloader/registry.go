// SPDX-License-Identifier: MPL-2.0

package classloader

import (
	"maps"
	"slices"
	"sync"
)

// SystemSource is the Source of classes registered in a Registry.
const SystemSource = "system"

// Registry holds the host types visible to every deployment. It is safe for
// concurrent use; registration normally happens once at start-up.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewRegistry creates an empty host type registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// Register adds (or replaces) a host type. ctor may be nil for marker types.
func (r *Registry) Register(name string, ctor Constructor, annotations ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[name] = &Class{
		Name:        name,
		Annotations: slices.Clone(annotations),
		Source:      SystemSource,
		constructor: ctor,
	}
}

// Lookup returns a registered host type.
func (r *Registry) Lookup(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Names returns the registered class names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.classes))
}
