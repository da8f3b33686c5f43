// SPDX-License-Identifier: MPL-2.0

package kmodule

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kdeploy/kdeploy/pkg/classloader"
)

var (
	// ErrKieBaseNotFound is returned when no module of a container declares
	// the requested knowledge base.
	ErrKieBaseNotFound = errors.New("knowledge base not found")
	// ErrAmbiguousDefaultKieBase is returned when more than one knowledge base
	// of a container is flagged as default.
	ErrAmbiguousDefaultKieBase = errors.New("multiple default knowledge bases")
)

type (
	// Container is the runtime view of a resolved module: the root module,
	// its dependency modules, and a class loader over all of them.
	Container struct {
		module  *Module
		modules []*Module
		loader  *classloader.Loader
	}

	// KieBase is a knowledge base bound to the module that declares it.
	KieBase struct {
		Model  KieBaseModel
		Module *Module
	}

	// KieBaseNotFoundError reports an unknown knowledge base name.
	KieBaseNotFoundError struct {
		Name      string
		ReleaseID ReleaseID
	}

	// AmbiguousDefaultKieBaseError lists the competing default knowledge bases.
	AmbiguousDefaultKieBaseError struct {
		ReleaseID ReleaseID
		Names     []string
	}
)

// Error implements the error interface.
func (e *KieBaseNotFoundError) Error() string {
	return fmt.Sprintf("cannot find kbase %q in %s", e.Name, e.ReleaseID)
}

// Unwrap returns ErrKieBaseNotFound so callers can use errors.Is for programmatic detection.
func (e *KieBaseNotFoundError) Unwrap() error { return ErrKieBaseNotFound }

// Error implements the error interface.
func (e *AmbiguousDefaultKieBaseError) Error() string {
	return fmt.Sprintf("%s declares multiple default kbases: %s", e.ReleaseID, strings.Join(e.Names, ", "))
}

// Unwrap returns ErrAmbiguousDefaultKieBase so callers can use errors.Is for programmatic detection.
func (e *AmbiguousDefaultKieBaseError) Unwrap() error { return ErrAmbiguousDefaultKieBase }

// NewContainer builds a container for a resolved module. Host types in system
// take precedence over the module's external jars, which take precedence over
// the module classes.
func NewContainer(m *Module, system *classloader.Registry) *Container {
	modules := append([]*Module{m}, m.TransitiveDependencies()...)
	resources := make([]classloader.Resources, 0, len(modules))
	for _, mod := range modules {
		resources = append(resources, mod)
	}
	return &Container{
		module:  m,
		modules: modules,
		loader:  classloader.NewLoader(system, classloader.NewJarLoader(m.AllJarDependencies()...), resources...),
	}
}

// ReleaseID returns the release id of the root module.
func (c *Container) ReleaseID() ReleaseID { return c.module.ReleaseID() }

// Module returns the root module.
func (c *Container) Module() *Module { return c.module }

// ClassLoader returns the container class loader.
func (c *Container) ClassLoader() *classloader.Loader { return c.loader }

// DefaultKieBase returns the knowledge base flagged as default across the
// container's modules. A name declared by several modules counts once, bound
// to the module closest to the root. ok is false when there is none.
func (c *Container) DefaultKieBase() (kb *KieBase, ok bool, err error) {
	var found []*KieBase
	for _, mod := range c.modules {
		for _, model := range mod.Model().KieBases {
			if !model.Default || slices.ContainsFunc(found, func(f *KieBase) bool { return f.Model.Name == model.Name }) {
				continue
			}
			found = append(found, &KieBase{Model: model, Module: mod})
		}
	}
	switch len(found) {
	case 0:
		return nil, false, nil
	case 1:
		return found[0], true, nil
	default:
		names := make([]string, len(found))
		for i, f := range found {
			names[i] = f.Model.Name
		}
		return nil, false, &AmbiguousDefaultKieBaseError{ReleaseID: c.ReleaseID(), Names: names}
	}
}

// KieBase returns the named knowledge base. The root module wins over its
// dependencies when several declare the same name.
func (c *Container) KieBase(name string) (*KieBase, error) {
	for _, mod := range c.modules {
		if model, ok := mod.Model().KieBase(name); ok {
			return &KieBase{Model: model, Module: mod}, nil
		}
	}
	return nil, &KieBaseNotFoundError{Name: name, ReleaseID: c.ReleaseID()}
}

// ModuleForKieBase returns the module that declares the named knowledge base.
func (c *Container) ModuleForKieBase(name string) (*Module, error) {
	kb, err := c.KieBase(name)
	if err != nil {
		return nil, err
	}
	return kb.Module, nil
}

// Name returns the knowledge base name.
func (kb *KieBase) Name() string { return kb.Model.Name }

// Resources lists the module files that belong to the knowledge base.
func (kb *KieBase) Resources() []string {
	var out []string
	for _, name := range kb.Module.FileNames() {
		if !strings.HasPrefix(name, "META-INF/") && kb.Model.Contains(name) {
			out = append(out, name)
		}
	}
	return out
}
