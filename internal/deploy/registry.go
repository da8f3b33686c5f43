// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/internal/persistence"
)

// Deployment states recorded in the deployment store.
const (
	StateActive   = "ACTIVE"
	StateInactive = "INACTIVE"
)

type (
	// Listener observes deployment lifecycle changes. Callbacks run on the
	// caller goroutine after the registry has been updated.
	Listener interface {
		OnDeploy(ctx context.Context, du *DeployedUnit)
		OnUndeploy(ctx context.Context, du *DeployedUnit)
		OnActivate(ctx context.Context, du *DeployedUnit)
		OnDeactivate(ctx context.Context, du *DeployedUnit)
	}

	// ListenerFuncs adapts optional functions to a Listener.
	ListenerFuncs struct {
		Deploy     func(ctx context.Context, du *DeployedUnit)
		Undeploy   func(ctx context.Context, du *DeployedUnit)
		Activate   func(ctx context.Context, du *DeployedUnit)
		Deactivate func(ctx context.Context, du *DeployedUnit)
	}

	// Registry holds the deployed units by identifier.
	Registry struct {
		mu        sync.RWMutex
		units     map[string]*DeployedUnit
		listeners []Listener
		store     *persistence.DeploymentStore
		logger    *log.Logger
	}

	// RegistryOption configures a Registry.
	RegistryOption func(*Registry)
)

// OnDeploy implements Listener.
func (f ListenerFuncs) OnDeploy(ctx context.Context, du *DeployedUnit) {
	if f.Deploy != nil {
		f.Deploy(ctx, du)
	}
}

// OnUndeploy implements Listener.
func (f ListenerFuncs) OnUndeploy(ctx context.Context, du *DeployedUnit) {
	if f.Undeploy != nil {
		f.Undeploy(ctx, du)
	}
}

// OnActivate implements Listener.
func (f ListenerFuncs) OnActivate(ctx context.Context, du *DeployedUnit) {
	if f.Activate != nil {
		f.Activate(ctx, du)
	}
}

// OnDeactivate implements Listener.
func (f ListenerFuncs) OnDeactivate(ctx context.Context, du *DeployedUnit) {
	if f.Deactivate != nil {
		f.Deactivate(ctx, du)
	}
}

// WithStore records deployments in a durable store.
func WithStore(s *persistence.DeploymentStore) RegistryOption {
	return func(r *Registry) { r.store = s }
}

// WithListener adds a lifecycle listener.
func WithListener(l Listener) RegistryOption {
	return func(r *Registry) { r.listeners = append(r.listeners, l) }
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		units:  map[string]*DeployedUnit{},
		logger: log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddListener adds a lifecycle listener.
func (r *Registry) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Get returns the deployed unit with the given identifier.
func (r *Registry) Get(id string) (*DeployedUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	du, ok := r.units[id]
	return du, ok
}

// IsDeployed reports whether id is registered.
func (r *Registry) IsDeployed(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns the deployed units sorted by identifier.
func (r *Registry) List() []*DeployedUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DeployedUnit, 0, len(r.units))
	for _, du := range r.units {
		out = append(out, du)
	}
	slices.SortFunc(out, func(a, b *DeployedUnit) int {
		switch {
		case a.Identifier() < b.Identifier():
			return -1
		case a.Identifier() > b.Identifier():
			return 1
		default:
			return 0
		}
	})
	return out
}

// commit registers a deployed unit and notifies listeners.
func (r *Registry) commit(ctx context.Context, du *DeployedUnit, releaseID, strategy string) error {
	id := du.Identifier()
	r.mu.Lock()
	if _, exists := r.units[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrAlreadyDeployed)
	}
	if r.store != nil {
		rec := persistence.DeploymentRecord{ID: id, ReleaseID: releaseID, State: stateOf(du), Strategy: strategy}
		if err := r.store.Create(ctx, rec); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("record deployment: %w", err)
		}
	}
	r.units[id] = du
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		l.OnDeploy(ctx, du)
	}
	return nil
}

// remove unregisters a unit, closes its runtime manager and notifies listeners.
func (r *Registry) remove(ctx context.Context, id string) (*DeployedUnit, error) {
	r.mu.Lock()
	du, ok := r.units[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", id, ErrNotDeployed)
	}
	delete(r.units, id)
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	if m := du.RuntimeManager(); m != nil {
		if err := m.Close(ctx); err != nil {
			r.logger.Warn("closing runtime manager failed", "unit", id, "err", err)
		}
	}
	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			r.logger.Warn("removing deployment record failed", "unit", id, "err", err)
		}
	}
	for _, l := range listeners {
		l.OnUndeploy(ctx, du)
	}
	return du, nil
}

// setActive toggles the active flag of a registered unit. It returns false
// when id is unknown.
func (r *Registry) setActive(ctx context.Context, id string, active bool) bool {
	du, ok := r.Get(id)
	if !ok {
		return false
	}
	du.SetActive(active)

	if r.store != nil {
		if err := r.store.SetState(ctx, id, stateOf(du)); err != nil {
			r.logger.Warn("updating deployment record failed", "unit", id, "err", err)
		}
	}

	r.mu.RLock()
	listeners := slices.Clone(r.listeners)
	r.mu.RUnlock()
	for _, l := range listeners {
		if active {
			l.OnActivate(ctx, du)
		} else {
			l.OnDeactivate(ctx, du)
		}
	}
	return true
}

func stateOf(du *DeployedUnit) string {
	if du.Active() {
		return StateActive
	}
	return StateInactive
}
