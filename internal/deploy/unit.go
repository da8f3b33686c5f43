// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kdeploy/kdeploy/pkg/descriptor"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

type (
	// Unit is a deployment request.
	Unit interface {
		Identifier() string
	}

	// ModuleUnit is a Unit backed by a module artifact. Its descriptor,
	// deployed flag and container are written only by the Service.
	ModuleUnit struct {
		GroupID        kmodule.GroupID
		ArtifactID     kmodule.ArtifactID
		Version        kmodule.Version
		KieBaseName    string
		KieSessionName string
		MergeMode      descriptor.MergeMode

		mu         sync.Mutex
		strategy   descriptor.RuntimeStrategy
		descriptor *descriptor.Descriptor
		deployed   bool
		container  *kmodule.Container
	}

	// UnitOption configures a ModuleUnit.
	UnitOption func(*ModuleUnit)
)

// WithKieBase selects the knowledge base, and optionally the session.
func WithKieBase(kbase, ksession string) UnitOption {
	return func(u *ModuleUnit) {
		u.KieBaseName = kbase
		u.KieSessionName = ksession
	}
}

// WithMergeMode sets the descriptor merge mode.
func WithMergeMode(m descriptor.MergeMode) UnitOption {
	return func(u *ModuleUnit) { u.MergeMode = m }
}

// WithDescriptor sets an explicit descriptor that takes precedence over the
// module's descriptor hierarchy at first deployment.
func WithDescriptor(d *descriptor.Descriptor) UnitOption {
	return func(u *ModuleUnit) { u.descriptor = d }
}

// NewModuleUnit creates a unit for the given coordinates.
func NewModuleUnit(group, artifact, version string, opts ...UnitOption) *ModuleUnit {
	u := &ModuleUnit{
		GroupID:    kmodule.GroupID(group),
		ArtifactID: kmodule.ArtifactID(artifact),
		Version:    kmodule.Version(version),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ParseUnitID parses "group:artifact:version[:kbase[:ksession]]".
func ParseUnitID(id string, opts ...UnitOption) (*ModuleUnit, error) {
	parts := strings.Split(id, ":")
	if len(parts) < 3 || len(parts) > 5 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUnitID, id)
	}
	rid := kmodule.NewReleaseID(parts[0], parts[1], parts[2])
	if ok, errs := rid.IsValid(); !ok {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidUnitID, id, errs[0])
	}
	u := NewModuleUnit(parts[0], parts[1], parts[2], opts...)
	if len(parts) > 3 {
		u.KieBaseName = parts[3]
	}
	if len(parts) > 4 {
		u.KieSessionName = parts[4]
	}
	return u, nil
}

// Identifier returns "group:artifact:version[:kbase[:ksession]]".
func (u *ModuleUnit) Identifier() string {
	id := u.ReleaseID().String()
	if u.KieBaseName != "" {
		id += ":" + u.KieBaseName
		if u.KieSessionName != "" {
			id += ":" + u.KieSessionName
		}
	}
	return id
}

// ReleaseID returns the unit's module coordinates.
func (u *ModuleUnit) ReleaseID() kmodule.ReleaseID {
	return kmodule.ReleaseID{GroupID: u.GroupID, ArtifactID: u.ArtifactID, Version: u.Version}
}

// RuntimeStrategy returns the strategy taken from the merged descriptor.
func (u *ModuleUnit) RuntimeStrategy() descriptor.RuntimeStrategy {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.strategy
}

// Descriptor returns the unit's descriptor: the explicit one before the
// first deployment, the merged one after.
func (u *ModuleUnit) Descriptor() *descriptor.Descriptor {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.descriptor
}

// Deployed reports whether the unit has been deployed successfully.
func (u *ModuleUnit) Deployed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.deployed
}

// Container returns the resolved container cached on the unit, or nil.
func (u *ModuleUnit) Container() *kmodule.Container {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.container
}

// Fresh returns an undeployed copy of the unit with the same coordinates and
// settings. The explicit descriptor is not carried over.
func (u *ModuleUnit) Fresh() *ModuleUnit {
	return &ModuleUnit{
		GroupID:        u.GroupID,
		ArtifactID:     u.ArtifactID,
		Version:        u.Version,
		KieBaseName:    u.KieBaseName,
		KieSessionName: u.KieSessionName,
		MergeMode:      u.MergeMode,
	}
}

func (u *ModuleUnit) setContainer(c *kmodule.Container) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.container = c
}

func (u *ModuleUnit) setDescriptor(d *descriptor.Descriptor) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.descriptor = d
	u.strategy = d.RuntimeStrategy
}

func (u *ModuleUnit) setDeployed(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deployed = v
}
