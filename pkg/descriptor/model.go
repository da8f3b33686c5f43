// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnnamedModel is returned when a named object model has no name.
	ErrUnnamedModel = errors.New("named object model without name")
	// ErrIncompleteModel is returned when an object model lacks its resolver
	// or identifier.
	ErrIncompleteModel = errors.New("object model requires resolver and identifier")
)

type (
	// ObjectModel declares how a runtime object is built: the resolver kind
	// that builds it, a resolver-specific identifier (class name, expression,
	// ...) and positional parameters. Parameters may nest further models.
	ObjectModel struct {
		Resolver   string `json:"resolver" yaml:"resolver" toml:"resolver"`
		Identifier string `json:"identifier" yaml:"identifier" toml:"identifier"`
		Parameters []any  `json:"parameters,omitempty" yaml:"parameters,omitempty" toml:"parameters,omitempty"`
	}

	// NamedObjectModel is an ObjectModel registered under a name (environment
	// entry, configuration entry, global, work item handler).
	NamedObjectModel struct {
		Name       string `json:"name" yaml:"name" toml:"name"`
		Resolver   string `json:"resolver" yaml:"resolver" toml:"resolver"`
		Identifier string `json:"identifier" yaml:"identifier" toml:"identifier"`
		Parameters []any  `json:"parameters,omitempty" yaml:"parameters,omitempty" toml:"parameters,omitempty"`
	}
)

// NewObjectModel builds an object model.
func NewObjectModel(resolver, identifier string, params ...any) ObjectModel {
	return ObjectModel{Resolver: resolver, Identifier: identifier, Parameters: params}
}

// NewNamedObjectModel builds a named object model.
func NewNamedObjectModel(name, resolver, identifier string, params ...any) NamedObjectModel {
	return NamedObjectModel{Name: name, Resolver: resolver, Identifier: identifier, Parameters: params}
}

// Key identifies an unnamed model for merging.
func (m ObjectModel) Key() string { return m.Resolver + "|" + m.Identifier }

// String returns "resolver:identifier".
func (m ObjectModel) String() string { return m.Resolver + ":" + m.Identifier }

// Model returns the unnamed part of the model.
func (m NamedObjectModel) Model() ObjectModel {
	return ObjectModel{Resolver: m.Resolver, Identifier: m.Identifier, Parameters: m.Parameters}
}

func (m ObjectModel) validate() error {
	if m.Resolver == "" || m.Identifier == "" {
		return fmt.Errorf("%w (got %q)", ErrIncompleteModel, m.String())
	}
	for i, p := range m.Parameters {
		if nested, ok := p.(ObjectModel); ok {
			if err := nested.validate(); err != nil {
				return fmt.Errorf("parameter %d: %w", i, err)
			}
		}
	}
	return nil
}

// normalize turns decoded parameter maps that carry both "resolver" and
// "identifier" into nested ObjectModels, recursively, and canonicalizes
// numbers to int64 or float64.
func normalize(params []any) []any {
	if params == nil {
		return nil
	}
	out := make([]any, len(params))
	for i, p := range params {
		out[i] = normalizeValue(p)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		resolver, okR := t["resolver"].(string)
		identifier, okI := t["identifier"].(string)
		if okR && okI {
			nested, _ := t["parameters"].([]any)
			return ObjectModel{Resolver: resolver, Identifier: identifier, Parameters: normalize(nested)}
		}
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalizeValue(val)
		}
		return m
	case []any:
		return normalize(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	default:
		return v
	}
}

func (d *Descriptor) normalize() {
	for _, f := range d.unnamed() {
		for i := range *f.list {
			(*f.list)[i].Parameters = normalize((*f.list)[i].Parameters)
		}
	}
	for _, f := range d.named() {
		for i := range *f.list {
			(*f.list)[i].Parameters = normalize((*f.list)[i].Parameters)
		}
	}
}

func cloneParams(params []any) []any {
	if params == nil {
		return nil
	}
	out := make([]any, len(params))
	for i, p := range params {
		switch t := p.(type) {
		case ObjectModel:
			t.Parameters = cloneParams(t.Parameters)
			out[i] = t
		case []any:
			out[i] = cloneParams(t)
		default:
			out[i] = p
		}
	}
	return out
}

func cloneModels(models []ObjectModel) []ObjectModel {
	if models == nil {
		return nil
	}
	out := slices.Clone(models)
	for i := range out {
		out[i].Parameters = cloneParams(out[i].Parameters)
	}
	return out
}

func cloneNamed(models []NamedObjectModel) []NamedObjectModel {
	if models == nil {
		return nil
	}
	out := slices.Clone(models)
	for i := range out {
		out[i].Parameters = cloneParams(out[i].Parameters)
	}
	return out
}
