// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema is a compiled CUE definition. It is safe for concurrent use.
type Schema struct {
	definition string

	// A cue.Context and the values built from it must not be used from
	// several goroutines at once.
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// Compile compiles src and looks up definition (e.g. "#Descriptor").
func Compile(src []byte, definition string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src)
	if v.Err() != nil {
		return nil, fmt.Errorf("compile schema: %w", v.Err())
	}
	root := v.LookupPath(cue.ParsePath(definition))
	if !root.Exists() {
		return nil, fmt.Errorf("schema definition %s not found", definition)
	}
	return &Schema{definition: definition, ctx: ctx, root: root}, nil
}

// MustCompile is Compile for embedded schemas; it panics on error.
func MustCompile(src []byte, definition string) *Schema {
	s, err := Compile(src, definition)
	if err != nil {
		panic(err)
	}
	return s
}

// Definition returns the name of the schema definition.
func (s *Schema) Definition() string { return s.definition }

// Decode validates data against s and decodes it into a T.
func Decode[T any](s *Schema, data []byte, opts ...Option) (*T, error) {
	var out T
	if err := s.decode(data, &out, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeMap validates data against s and decodes it into a generic map,
// keeping only the keys the document sets.
func (s *Schema) DecodeMap(data []byte, opts ...Option) (map[string]any, error) {
	var out map[string]any
	if err := s.decode(data, &out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Schema) decode(data []byte, out any, opts []Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.ctx.CompileBytes(data, cue.Filename(o.filename))
	if doc.Err() != nil {
		return FormatError(doc.Err(), o.filename)
	}
	unified := s.root.Unify(doc)
	if err := unified.Validate(cue.Concrete(o.concrete)); err != nil {
		return FormatError(err, o.filename)
	}
	if err := unified.Decode(out); err != nil {
		return FormatError(err, o.filename)
	}
	return nil
}
