// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"slices"
	"sync"

	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/internal/runtime"
)

// AssetTypeProcess is the type of process assets.
const AssetTypeProcess = "process"

type (
	// DeployedAsset is a deployed process, rule or decision artifact.
	DeployedAsset interface {
		AssetID() string
		AssetType() string
		Roles() []string
		DeploymentID() string
	}

	// ProcessAsset is a deployed process definition.
	ProcessAsset struct {
		ID           string
		Name         string
		Version      string
		PackageName  string
		OriginalPath string
		Deployment   string
		// EncodedSource is the base64 (standard encoding) copy of the definition source.
		EncodedSource string
		RequiredRoles []string
	}

	// DeployedUnit is the live result of a successful deployment.
	DeployedUnit struct {
		unit    Unit
		mu      sync.RWMutex
		assets  map[string]DeployedAsset
		classes map[string]*classloader.Class
		active  bool
		manager runtime.Manager
	}
)

// AssetID implements DeployedAsset.
func (p *ProcessAsset) AssetID() string { return p.ID }

// AssetType implements DeployedAsset.
func (p *ProcessAsset) AssetType() string { return AssetTypeProcess }

// Roles implements DeployedAsset.
func (p *ProcessAsset) Roles() []string { return slices.Clone(p.RequiredRoles) }

// DeploymentID implements DeployedAsset.
func (p *ProcessAsset) DeploymentID() string { return p.Deployment }

// NewDeployedUnit creates an empty, inactive deployed unit.
func NewDeployedUnit(u Unit) *DeployedUnit {
	return &DeployedUnit{
		unit:    u,
		assets:  map[string]DeployedAsset{},
		classes: map[string]*classloader.Class{},
	}
}

// Unit returns the deployment unit.
func (d *DeployedUnit) Unit() Unit { return d.unit }

// Identifier returns the unit identifier.
func (d *DeployedUnit) Identifier() string { return d.unit.Identifier() }

// AddAsset stores an asset under its id, replacing any previous one.
func (d *DeployedUnit) AddAsset(a DeployedAsset) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assets[a.AssetID()] = a
}

// Asset returns the asset with the given id.
func (d *DeployedUnit) Asset(id string) (DeployedAsset, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.assets[id]
	return a, ok
}

// Assets returns the assets sorted by id.
func (d *DeployedUnit) Assets() []DeployedAsset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DeployedAsset, 0, len(d.assets))
	for _, a := range d.assets {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b DeployedAsset) int {
		switch {
		case a.AssetID() < b.AssetID():
			return -1
		case a.AssetID() > b.AssetID():
			return 1
		default:
			return 0
		}
	})
	return out
}

// AddClass adds a loaded class.
func (d *DeployedUnit) AddClass(c *classloader.Class) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes[c.Name] = c
}

// Class returns a loaded class by name.
func (d *DeployedUnit) Class(name string) (*classloader.Class, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.classes[name]
	return c, ok
}

// ClassNames returns the loaded class names, sorted.
func (d *DeployedUnit) ClassNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.classes))
	for n := range d.classes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Active reports whether the unit is active.
func (d *DeployedUnit) Active() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// SetActive sets the active flag.
func (d *DeployedUnit) SetActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = active
}

// RuntimeManager returns the runtime manager of the unit.
func (d *DeployedUnit) RuntimeManager() runtime.Manager {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.manager
}

// SetRuntimeManager sets the runtime manager of the unit.
func (d *DeployedUnit) SetRuntimeManager(m runtime.Manager) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manager = m
}

// setProcessRoles replaces the required roles of every process asset.
func (d *DeployedUnit) setProcessRoles(roles []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.assets {
		if p, ok := a.(*ProcessAsset); ok {
			p.RequiredRoles = slices.Clone(roles)
		}
	}
}
