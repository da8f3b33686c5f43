// SPDX-License-Identifier: MPL-2.0

package objectmodel

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/cueutil"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
)

const (
	// KindReflection instantiates a class through its registered constructor.
	KindReflection = "reflection"
	// KindCUE evaluates a CUE expression.
	KindCUE = "cue"
	// KindEnv expands a shell-style word.
	KindEnv = "env"
)

// ErrNoClassLoader is returned by resolvers that need a class loader when none is given.
var ErrNoClassLoader = errors.New("class loader required")

type (
	// ReflectionResolver loads the identifier as a class and calls its
	// constructor with the resolved parameters. Nested object models among
	// the parameters are resolved first through the nested resolver.
	ReflectionResolver struct {
		nested Resolver
	}

	// CUEResolver evaluates the identifier as a CUE expression. Scalar
	// context parameters are visible as identifiers.
	CUEResolver struct{}

	// EnvResolver expands the identifier as a shell word such as
	// "${DB_URL:-jdbc:h2:mem}" against scalar context parameters and the
	// process environment. Context parameters take precedence.
	EnvResolver struct {
		// Environ overrides os.Environ when set.
		Environ func() []string
	}
)

// NewReflectionResolver creates a reflection resolver that resolves nested
// models through nested.
func NewReflectionResolver(nested Resolver) *ReflectionResolver {
	return &ReflectionResolver{nested: nested}
}

// Resolve implements Resolver.
func (r *ReflectionResolver) Resolve(model descriptor.ObjectModel, loader *classloader.Loader, params map[string]any) (any, error) {
	if loader == nil {
		return nil, ErrNoClassLoader
	}
	class, err := loader.LoadClass(model.Identifier)
	if err != nil {
		return nil, err
	}

	args := make([]any, len(model.Parameters))
	for i, p := range model.Parameters {
		nested, ok := p.(descriptor.ObjectModel)
		if !ok || r.nested == nil {
			args[i] = p
			continue
		}
		v, err := r.nested.Resolve(nested, loader, params)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		args[i] = v
	}
	return class.New(args, params)
}

// Resolve implements Resolver.
func (CUEResolver) Resolve(model descriptor.ObjectModel, _ *classloader.Loader, params map[string]any) (any, error) {
	return cueutil.EvalExpression(model.Identifier, scalarParams(params))
}

// Resolve implements Resolver.
func (r EnvResolver) Resolve(model descriptor.ObjectModel, _ *classloader.Loader, params map[string]any) (any, error) {
	word, err := syntax.NewParser().Document(strings.NewReader(model.Identifier))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", model.Identifier, err)
	}

	environ := os.Environ
	if r.Environ != nil {
		environ = r.Environ
	}
	pairs := slices.Clone(environ())
	for k, v := range scalarParams(params) {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
	}

	cfg := &expand.Config{Env: expand.ListEnviron(pairs...)}
	out, err := expand.Literal(cfg, word)
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", model.Identifier, err)
	}
	return out, nil
}

// scalarParams keeps the context parameters that expression languages can see.
func scalarParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch v.(type) {
		case string, bool, int, int64, float64:
			out[k] = v
		}
	}
	return out
}
