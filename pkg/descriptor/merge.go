// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

const (
	// MergeKeepAll keeps the lower-precedence descriptor entirely.
	MergeKeepAll MergeMode = "KEEP_ALL"
	// MergeOverrideAll replaces the lower-precedence descriptor entirely.
	MergeOverrideAll MergeMode = "OVERRIDE_ALL"
	// MergeOverrideEmpty replaces every field the higher-precedence descriptor sets.
	MergeOverrideEmpty MergeMode = "OVERRIDE_EMPTY"
	// MergeCollections overrides set scalars and unions collections.
	MergeCollections MergeMode = "MERGE_COLLECTIONS"

	// DefaultMergeMode is used when no mode is configured.
	DefaultMergeMode = MergeCollections
)

var (
	// ErrInvalidMergeMode is the sentinel error wrapped by InvalidMergeModeError.
	ErrInvalidMergeMode = errors.New("invalid merge mode")
	// ErrEmptyHierarchy is returned when merging zero descriptors.
	ErrEmptyHierarchy = errors.New("empty descriptor hierarchy")
)

type (
	// MergeMode selects how two descriptors combine.
	MergeMode string

	// InvalidMergeModeError is returned when a MergeMode value is not recognized.
	InvalidMergeModeError struct {
		Value MergeMode
	}

	// Merger folds a descriptor hierarchy into one effective descriptor.
	// hierarchy[0] has the highest precedence.
	Merger interface {
		Merge(hierarchy []*Descriptor, mode MergeMode) (*Descriptor, error)
	}

	// FoldMerger is the default Merger.
	FoldMerger struct{}
)

// Error implements the error interface.
func (e *InvalidMergeModeError) Error() string {
	return fmt.Sprintf("invalid merge mode %q (valid: %s)", e.Value, joinModes())
}

// Unwrap returns ErrInvalidMergeMode so callers can use errors.Is for programmatic detection.
func (e *InvalidMergeModeError) Unwrap() error { return ErrInvalidMergeMode }

// MergeModes returns every supported merge mode.
func MergeModes() []MergeMode {
	return []MergeMode{MergeKeepAll, MergeOverrideAll, MergeOverrideEmpty, MergeCollections}
}

func joinModes() string {
	s := ""
	for i, m := range MergeModes() {
		if i > 0 {
			s += ", "
		}
		s += string(m)
	}
	return s
}

// IsValid returns whether the MergeMode is a known mode, and a list of
// validation errors if it is not.
func (m MergeMode) IsValid() (bool, []error) {
	if slices.Contains(MergeModes(), m) {
		return true, nil
	}
	return false, []error{&InvalidMergeModeError{Value: m}}
}

// String returns the string representation of the MergeMode.
func (m MergeMode) String() string { return string(m) }

// Merge folds the hierarchy right to left: the last descriptor is the base
// and each earlier descriptor is merged over it. An empty mode means
// DefaultMergeMode. The inputs are never modified.
func (FoldMerger) Merge(hierarchy []*Descriptor, mode MergeMode) (*Descriptor, error) {
	return Merge(hierarchy, mode)
}

// Merge is the function form of FoldMerger.Merge.
func Merge(hierarchy []*Descriptor, mode MergeMode) (*Descriptor, error) {
	if mode == "" {
		mode = DefaultMergeMode
	}
	if ok, errs := mode.IsValid(); !ok {
		return nil, errs[0]
	}
	if len(hierarchy) == 0 {
		return nil, ErrEmptyHierarchy
	}

	merged := hierarchy[len(hierarchy)-1].Clone()
	for i := len(hierarchy) - 2; i >= 0; i-- {
		merged = mergePair(merged, hierarchy[i], mode)
	}
	return merged, nil
}

// mergePair merges child (higher precedence) over parent.
func mergePair(parent, child *Descriptor, mode MergeMode) *Descriptor {
	if child == nil {
		return parent.Clone()
	}
	switch mode {
	case MergeKeepAll:
		return parent.Clone()
	case MergeOverrideAll:
		return child.Clone()
	}

	out := parent.Clone()
	c := child.Clone()

	out.PersistenceUnit = overrideString(out.PersistenceUnit, c.PersistenceUnit)
	out.AuditPersistenceUnit = overrideString(out.AuditPersistenceUnit, c.AuditPersistenceUnit)
	out.AuditMode = overrideString(out.AuditMode, c.AuditMode)
	out.PersistenceMode = overrideString(out.PersistenceMode, c.PersistenceMode)
	out.RuntimeStrategy = overrideString(out.RuntimeStrategy, c.RuntimeStrategy)

	if mode == MergeOverrideEmpty {
		out.MarshallingStrategies = overrideSlice(out.MarshallingStrategies, c.MarshallingStrategies)
		out.EventListeners = overrideSlice(out.EventListeners, c.EventListeners)
		out.TaskEventListeners = overrideSlice(out.TaskEventListeners, c.TaskEventListeners)
		out.Globals = overrideSlice(out.Globals, c.Globals)
		out.WorkItemHandlers = overrideSlice(out.WorkItemHandlers, c.WorkItemHandlers)
		out.EnvironmentEntries = overrideSlice(out.EnvironmentEntries, c.EnvironmentEntries)
		out.Configuration = overrideSlice(out.Configuration, c.Configuration)
		out.Classes = overrideSlice(out.Classes, c.Classes)
		if len(c.RequiredRoles) > 0 {
			out.RequiredRoles = c.RequiredRoles
		}
		return out
	}

	out.MarshallingStrategies = unionModels(out.MarshallingStrategies, c.MarshallingStrategies)
	out.EventListeners = unionModels(out.EventListeners, c.EventListeners)
	out.TaskEventListeners = unionModels(out.TaskEventListeners, c.TaskEventListeners)
	out.Globals = unionNamed(out.Globals, c.Globals)
	out.WorkItemHandlers = unionNamed(out.WorkItemHandlers, c.WorkItemHandlers)
	out.EnvironmentEntries = unionNamed(out.EnvironmentEntries, c.EnvironmentEntries)
	out.Configuration = unionNamed(out.Configuration, c.Configuration)
	out.Classes = unionStrings(out.Classes, c.Classes)
	if len(c.RequiredRoles) > 0 {
		if out.RequiredRoles == nil {
			out.RequiredRoles = make(map[string][]string, len(c.RequiredRoles))
		}
		for _, roleType := range slices.Sorted(maps.Keys(c.RequiredRoles)) {
			out.RequiredRoles[roleType] = unionStrings(out.RequiredRoles[roleType], c.RequiredRoles[roleType])
		}
	}
	return out
}

func overrideString[S ~string](parent, child S) S {
	if child != "" {
		return child
	}
	return parent
}

func overrideSlice[T any](parent, child []T) []T {
	if len(child) > 0 {
		return child
	}
	return parent
}

// unionModels replaces parent entries with the same resolver and identifier
// in place and appends the rest.
func unionModels(parent, child []ObjectModel) []ObjectModel {
	out := parent
	for _, m := range child {
		if i := slices.IndexFunc(out, func(p ObjectModel) bool { return p.Key() == m.Key() }); i >= 0 {
			out[i] = m
			continue
		}
		out = append(out, m)
	}
	return out
}

// unionNamed replaces parent entries with the same name in place and appends
// the rest.
func unionNamed(parent, child []NamedObjectModel) []NamedObjectModel {
	out := parent
	for _, m := range child {
		if i := slices.IndexFunc(out, func(p NamedObjectModel) bool { return p.Name == m.Name }); i >= 0 {
			out[i] = m
			continue
		}
		out = append(out, m)
	}
	return out
}

func unionStrings(parent, child []string) []string {
	out := parent
	for _, s := range child {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
