// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// EvalExpression compiles expr with the entries of scope visible as
// identifiers, requires a concrete result, and decodes it into a Go value.
// Scope values must be encodable by CUE (scalars, maps, slices).
func EvalExpression(expr string, scope map[string]any) (any, error) {
	ctx := cuecontext.New()

	var opts []cue.BuildOption
	if len(scope) > 0 {
		sv := ctx.Encode(scope)
		if sv.Err() != nil {
			return nil, fmt.Errorf("encode expression scope: %w", sv.Err())
		}
		opts = append(opts, cue.Scope(sv))
	}

	v := ctx.CompileString(expr, opts...)
	if v.Err() != nil {
		return nil, FormatError(v.Err(), "<expression>")
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, FormatError(err, "<expression>")
	}

	var out any
	if err := v.Decode(&out); err != nil {
		return nil, FormatError(err, "<expression>")
	}
	return out, nil
}
