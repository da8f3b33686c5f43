// SPDX-License-Identifier: MPL-2.0

// Package cueutil compiles embedded CUE schemas and decodes documents
// validated against them. The module model, deployment descriptors and the
// host configuration are all read through a Schema:
//
//	//go:embed kmodule_schema.cue
//	var schemaSrc []byte
//
//	var modelSchema = cueutil.MustCompile(schemaSrc, "#KModule")
//
//	m, err := cueutil.Decode[Model](modelSchema, data, cueutil.WithFilename("META-INF/kmodule.cue"))
//
// Errors name the offending field in JSON-path notation (kbases[0].name).
// EvalExpression evaluates a standalone expression against a scope of plain
// values; it backs the "cue" object-model resolver.
package cueutil
