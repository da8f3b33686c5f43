// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"maps"
	"slices"

	"github.com/kdeploy/kdeploy/internal/persistence"
	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// Well-known environment entry names.
const (
	EnvObjectMarshallingStrategies = "ObjectMarshallingStrategies"
	EnvKieDeploymentDescriptor     = "KieDeploymentDescriptor"
	EnvKieContainer                = "KieContainer"
	EnvExecutorService             = "ExecutorService"
)

var (
	// ErrNoKnowledgeBase is returned when building an environment without a knowledge base.
	ErrNoKnowledgeBase = errors.New("runtime environment requires a knowledge base")
	// ErrNoEntityManagerFactory is returned when building a persistence-backed
	// environment without an entity manager factory.
	ErrNoEntityManagerFactory = errors.New("persistence-backed runtime environment requires an entity manager factory")
)

type (
	// Environment is the assembled runtime environment of a deployment.
	// It is read-only once built.
	Environment struct {
		persistent  bool
		kbase       *kmodule.KieBase
		loader      *classloader.Loader
		factory     *persistence.Factory
		entries     map[string]any
		entryOrder  []string
		config      map[string]string
		configOrder []string
		items       RegisterableItemsFactory
	}

	// Builder assembles an Environment.
	Builder struct {
		env Environment
	}
)

// NewDefaultBuilder starts a persistence-backed environment.
func NewDefaultBuilder() *Builder {
	return newBuilder(true)
}

// NewDefaultInMemoryBuilder starts an in-memory environment.
func NewDefaultInMemoryBuilder() *Builder {
	return newBuilder(false)
}

func newBuilder(persistent bool) *Builder {
	return &Builder{env: Environment{
		persistent: persistent,
		entries:    map[string]any{},
		config:     map[string]string{},
	}}
}

// KnowledgeBase sets the knowledge base.
func (b *Builder) KnowledgeBase(kb *kmodule.KieBase) *Builder {
	b.env.kbase = kb
	return b
}

// ClassLoader sets the class loader.
func (b *Builder) ClassLoader(l *classloader.Loader) *Builder {
	b.env.loader = l
	return b
}

// EntityManagerFactory sets the entity manager factory.
func (b *Builder) EntityManagerFactory(f *persistence.Factory) *Builder {
	b.env.factory = f
	return b
}

// AddEnvironmentEntry adds a named entry. Re-adding a name replaces its
// value and keeps its position.
func (b *Builder) AddEnvironmentEntry(name string, value any) *Builder {
	if _, ok := b.env.entries[name]; !ok {
		b.env.entryOrder = append(b.env.entryOrder, name)
	}
	b.env.entries[name] = value
	return b
}

// AddConfiguration adds a named configuration value.
func (b *Builder) AddConfiguration(name, value string) *Builder {
	if _, ok := b.env.config[name]; !ok {
		b.env.configOrder = append(b.env.configOrder, name)
	}
	b.env.config[name] = value
	return b
}

// RegisterableItemsFactory sets the factory that equips engines.
func (b *Builder) RegisterableItemsFactory(f RegisterableItemsFactory) *Builder {
	b.env.items = f
	return b
}

// Get validates and returns the environment. The builder may keep being
// used; later changes do not affect returned environments.
func (b *Builder) Get() (*Environment, error) {
	if b.env.kbase == nil {
		return nil, ErrNoKnowledgeBase
	}
	if b.env.persistent && b.env.factory == nil {
		return nil, ErrNoEntityManagerFactory
	}
	env := b.env
	env.entries = maps.Clone(b.env.entries)
	env.entryOrder = slices.Clone(b.env.entryOrder)
	env.config = maps.Clone(b.env.config)
	env.configOrder = slices.Clone(b.env.configOrder)
	return &env, nil
}

// Persistent reports whether the environment is persistence-backed.
func (e *Environment) Persistent() bool { return e.persistent }

// KnowledgeBase returns the knowledge base.
func (e *Environment) KnowledgeBase() *kmodule.KieBase { return e.kbase }

// ClassLoader returns the class loader.
func (e *Environment) ClassLoader() *classloader.Loader { return e.loader }

// EntityManagerFactory returns the entity manager factory, or nil.
func (e *Environment) EntityManagerFactory() *persistence.Factory { return e.factory }

// RegisterableItemsFactory returns the engine items factory, or nil.
func (e *Environment) RegisterableItemsFactory() RegisterableItemsFactory { return e.items }

// Get returns a named environment entry.
func (e *Environment) Get(name string) (any, bool) {
	v, ok := e.entries[name]
	return v, ok
}

// EntryNames returns the entry names in insertion order.
func (e *Environment) EntryNames() []string { return slices.Clone(e.entryOrder) }

// Configuration returns a named configuration value.
func (e *Environment) Configuration(name string) (string, bool) {
	v, ok := e.config[name]
	return v, ok
}

// ConfigurationNames returns the configuration names in insertion order.
func (e *Environment) ConfigurationNames() []string { return slices.Clone(e.configOrder) }

// MarshallingStrategies returns the strategies stored under
// EnvObjectMarshallingStrategies.
func (e *Environment) MarshallingStrategies() []MarshallingStrategy {
	strategies, _ := e.entries[EnvObjectMarshallingStrategies].([]MarshallingStrategy)
	return slices.Clone(strategies)
}
