// SPDX-License-Identifier: MPL-2.0

// Package resource classifies the files of a module.
package resource

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// KindOther is a file the deployment ignores.
	KindOther Kind = iota
	// KindProcess is a BPMN2 process definition.
	KindProcess
	// KindForm is a form template.
	KindForm
	// KindClass is a compiled class.
	KindClass
)

type (
	// Kind is the deployment role of a module file.
	Kind int

	// Rule maps a doublestar pattern to a kind.
	Rule struct {
		Pattern string
		Kind    Kind
	}

	// Classifier assigns a kind to each path using the first matching rule.
	Classifier struct {
		rules []Rule
	}
)

// DefaultRules are the rules of the default classifier.
var DefaultRules = []Rule{
	{Pattern: "**/*.bpmn", Kind: KindProcess},
	{Pattern: "**/*.bpmn2", Kind: KindProcess},
	{Pattern: "**/*.ftl", Kind: KindForm},
	{Pattern: "**/*.form", Kind: KindForm},
	{Pattern: "**/*.class", Kind: KindClass},
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process"
	case KindForm:
		return "form"
	case KindClass:
		return "class"
	default:
		return "other"
	}
}

// NewClassifier creates a classifier. Patterns are validated up front.
func NewClassifier(rules ...Rule) (*Classifier, error) {
	for _, r := range rules {
		if !doublestar.ValidatePattern(r.Pattern) {
			return nil, fmt.Errorf("invalid resource pattern %q", r.Pattern)
		}
	}
	return &Classifier{rules: rules}, nil
}

// Default returns a classifier with DefaultRules.
func Default() *Classifier {
	return &Classifier{rules: DefaultRules}
}

// Classify returns the kind of a module path. Matching is case-sensitive on
// the path and case-insensitive on the extension.
func (c *Classifier) Classify(path string) Kind {
	p := strings.TrimPrefix(path, "/")
	if dot := strings.LastIndexByte(p, '.'); dot >= 0 {
		p = p[:dot] + strings.ToLower(p[dot:])
	}
	for _, r := range c.rules {
		if ok, err := doublestar.Match(r.Pattern, p); err == nil && ok {
			return r.Kind
		}
	}
	return KindOther
}

// BaseName strips the directory prefix of a module path.
func BaseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
