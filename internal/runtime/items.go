// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/kdeploy/kdeploy/internal/objectmodel"
	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
)

// Context parameters added when resolving per-engine items.
const (
	ParamRuntimeEngine = "runtimeEngine"
	ParamDeploymentID  = "deploymentId"
)

var (
	// ErrNotAListener is returned when a declared event listener does not
	// implement the listener interface.
	ErrNotAListener = errors.New("object is not an event listener")
	// ErrNotAWorkItemHandler is returned when a declared work item handler
	// does not implement WorkItemHandler.
	ErrNotAWorkItemHandler = errors.New("object is not a work item handler")
)

type (
	// RegisterableItemsFactory equips each engine with its listeners,
	// handlers and globals.
	RegisterableItemsFactory interface {
		ProcessEventListeners(ctx context.Context, engine *Engine) ([]ProcessEventListener, error)
		TaskEventListeners(ctx context.Context, engine *Engine) ([]any, error)
		WorkItemHandlers(ctx context.Context, engine *Engine) (map[string]WorkItemHandler, error)
		Globals(ctx context.Context, engine *Engine) (map[string]any, error)
	}

	// DescriptorItemsFactory resolves the items a descriptor declares. Process
	// listeners are, in order: the identity-aware listener, the audit listener
	// (when set) and the declared listeners.
	DescriptorItemsFactory struct {
		Descriptor *descriptor.Descriptor
		Resolver   objectmodel.Resolver
		Loader     *classloader.Loader
		Params     map[string]any
		Identity   IdentityProvider
		Audit      *AuditListener
	}
)

func (f *DescriptorItemsFactory) params(engine *Engine) map[string]any {
	p := maps.Clone(f.Params)
	if p == nil {
		p = map[string]any{}
	}
	p[ParamRuntimeEngine] = engine
	p[ParamDeploymentID] = engine.DeploymentID
	return p
}

// ProcessEventListeners implements RegisterableItemsFactory.
func (f *DescriptorItemsFactory) ProcessEventListeners(_ context.Context, engine *Engine) ([]ProcessEventListener, error) {
	listeners := []ProcessEventListener{&IdentityProviderAwareProcessListener{Provider: f.Identity}}
	if f.Audit != nil {
		listeners = append(listeners, f.Audit)
	}

	params := f.params(engine)
	for _, m := range f.Descriptor.EventListeners {
		obj, err := f.Resolver.Resolve(m, f.Loader, params)
		if err != nil {
			return nil, err
		}
		l, ok := obj.(ProcessEventListener)
		if !ok {
			return nil, fmt.Errorf("%s: %w (got %T)", m, ErrNotAListener, obj)
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// TaskEventListeners implements RegisterableItemsFactory.
func (f *DescriptorItemsFactory) TaskEventListeners(_ context.Context, engine *Engine) ([]any, error) {
	params := f.params(engine)
	listeners := make([]any, 0, len(f.Descriptor.TaskEventListeners))
	for _, m := range f.Descriptor.TaskEventListeners {
		obj, err := f.Resolver.Resolve(m, f.Loader, params)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, obj)
	}
	return listeners, nil
}

// WorkItemHandlers implements RegisterableItemsFactory.
func (f *DescriptorItemsFactory) WorkItemHandlers(_ context.Context, engine *Engine) (map[string]WorkItemHandler, error) {
	params := f.params(engine)
	handlers := make(map[string]WorkItemHandler, len(f.Descriptor.WorkItemHandlers))
	for _, m := range f.Descriptor.WorkItemHandlers {
		obj, err := f.Resolver.Resolve(m.Model(), f.Loader, params)
		if err != nil {
			return nil, err
		}
		h, ok := obj.(WorkItemHandler)
		if !ok {
			return nil, fmt.Errorf("%s: %w (got %T)", m.Name, ErrNotAWorkItemHandler, obj)
		}
		handlers[m.Name] = h
	}
	return handlers, nil
}

// Globals implements RegisterableItemsFactory.
func (f *DescriptorItemsFactory) Globals(_ context.Context, engine *Engine) (map[string]any, error) {
	params := f.params(engine)
	globals := make(map[string]any, len(f.Descriptor.Globals))
	for _, m := range f.Descriptor.Globals {
		obj, err := f.Resolver.Resolve(m.Model(), f.Loader, params)
		if err != nil {
			return nil, err
		}
		globals[m.Name] = obj
	}
	return globals, nil
}
