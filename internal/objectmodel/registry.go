// SPDX-License-Identifier: MPL-2.0

package objectmodel

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
)

const (
	// ParamEntityManagerFactory is the context parameter holding the
	// persistence factory of the deployment (may be nil).
	ParamEntityManagerFactory = "entityManagerFactory"
	// ParamClassLoader is the context parameter holding the container class loader.
	ParamClassLoader = "classLoader"
)

// ErrUnknownResolver is returned when no resolver is registered for a model's kind.
var ErrUnknownResolver = errors.New("unknown object model resolver")

type (
	// Resolver builds the object an ObjectModel describes. params carries the
	// deployment context and is never nil.
	Resolver interface {
		Resolve(model descriptor.ObjectModel, loader *classloader.Loader, params map[string]any) (any, error)
	}

	// ResolverFunc adapts a function to the Resolver interface.
	ResolverFunc func(model descriptor.ObjectModel, loader *classloader.Loader, params map[string]any) (any, error)

	// UnknownResolverError reports a model whose resolver kind is not registered.
	UnknownResolverError struct {
		Kind  string
		Known []string
	}

	// Registry dispatches models to resolvers by kind. It is safe for
	// concurrent use; registration normally happens before any deployment.
	Registry struct {
		mu        sync.RWMutex
		resolvers map[string]Resolver
	}
)

// Resolve calls f.
func (f ResolverFunc) Resolve(model descriptor.ObjectModel, loader *classloader.Loader, params map[string]any) (any, error) {
	return f(model, loader, params)
}

// Error implements the error interface.
func (e *UnknownResolverError) Error() string {
	return fmt.Sprintf("no resolver registered for kind %q (known: %v)", e.Kind, e.Known)
}

// Unwrap returns ErrUnknownResolver so callers can use errors.Is for programmatic detection.
func (e *UnknownResolverError) Unwrap() error { return ErrUnknownResolver }

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// NewDefaultRegistry creates a registry with the built-in reflection, cue
// and env resolvers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindReflection, NewReflectionResolver(r))
	r.Register(KindCUE, CUEResolver{})
	r.Register(KindEnv, EnvResolver{})
	return r
}

// Register binds a resolver to a kind, replacing any previous binding.
func (r *Registry) Register(kind string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[kind] = resolver
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.resolvers))
	for k := range r.resolvers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Resolve builds the object for model with the resolver registered for its kind.
func (r *Registry) Resolve(model descriptor.ObjectModel, loader *classloader.Loader, params map[string]any) (any, error) {
	r.mu.RLock()
	resolver, ok := r.resolvers[model.Resolver]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownResolverError{Kind: model.Resolver, Known: r.Kinds()}
	}
	if params == nil {
		params = map[string]any{}
	}
	obj, err := resolver.Resolve(model, loader, params)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", model, err)
	}
	return obj, nil
}

// ContextParams returns the standard context parameters of a deployment.
func ContextParams(factory any, loader *classloader.Loader) map[string]any {
	return map[string]any{
		ParamEntityManagerFactory: factory,
		ParamClassLoader:          loader,
	}
}
