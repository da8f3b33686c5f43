// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

const (
	// PersistenceNone selects the in-memory runtime builder.
	PersistenceNone PersistenceMode = "NONE"
	// PersistenceJPA selects the persistence-backed runtime builder.
	PersistenceJPA PersistenceMode = "JPA"

	// AuditJPA writes audit records to the audit persistence unit.
	AuditJPA AuditMode = "JPA"
	// AuditJMS hands audit records to a message sink.
	AuditJMS AuditMode = "JMS"
	// AuditNone disables audit logging.
	AuditNone AuditMode = "NONE"

	// StrategySingleton shares one engine across all requests.
	StrategySingleton RuntimeStrategy = "SINGLETON"
	// StrategyPerRequest creates an engine per request.
	StrategyPerRequest RuntimeStrategy = "PER_REQUEST"
	// StrategyPerProcessInstance binds an engine to each process instance.
	StrategyPerProcessInstance RuntimeStrategy = "PER_PROCESS_INSTANCE"

	// RoleTypeAll holds roles required for every asset type.
	RoleTypeAll = "all"
	// RoleTypeProcess holds roles required for process assets.
	RoleTypeProcess = "process"

	// DefaultPersistenceUnit is the persistence unit of the host default descriptor.
	DefaultPersistenceUnit = "org.jbpm.domain"
)

var (
	// ErrInvalidPersistenceMode is the sentinel error wrapped by InvalidPersistenceModeError.
	ErrInvalidPersistenceMode = errors.New("invalid persistence mode")
	// ErrInvalidAuditMode is the sentinel error wrapped by InvalidAuditModeError.
	ErrInvalidAuditMode = errors.New("invalid audit mode")
	// ErrInvalidRuntimeStrategy is the sentinel error wrapped by InvalidRuntimeStrategyError.
	ErrInvalidRuntimeStrategy = errors.New("invalid runtime strategy")
)

type (
	// PersistenceMode selects between in-memory and persistence-backed runtimes.
	PersistenceMode string

	// AuditMode selects how audit records are written.
	AuditMode string

	// RuntimeStrategy selects how runtime engines are shared.
	RuntimeStrategy string

	// Descriptor is the deployment configuration of a unit. Empty scalar
	// fields and nil collections mean "not set" and are filled in by merging.
	// A merged Descriptor is never mutated.
	Descriptor struct {
		PersistenceUnit       string              `json:"persistence_unit,omitempty" yaml:"persistence_unit,omitempty" toml:"persistence_unit,omitempty"`
		AuditPersistenceUnit  string              `json:"audit_persistence_unit,omitempty" yaml:"audit_persistence_unit,omitempty" toml:"audit_persistence_unit,omitempty"`
		AuditMode             AuditMode           `json:"audit_mode,omitempty" yaml:"audit_mode,omitempty" toml:"audit_mode,omitempty"`
		PersistenceMode       PersistenceMode     `json:"persistence_mode,omitempty" yaml:"persistence_mode,omitempty" toml:"persistence_mode,omitempty"`
		RuntimeStrategy       RuntimeStrategy     `json:"runtime_strategy,omitempty" yaml:"runtime_strategy,omitempty" toml:"runtime_strategy,omitempty"`
		MarshallingStrategies []ObjectModel       `json:"marshalling_strategies,omitempty" yaml:"marshalling_strategies,omitempty" toml:"marshalling_strategies,omitempty"`
		EventListeners        []ObjectModel       `json:"event_listeners,omitempty" yaml:"event_listeners,omitempty" toml:"event_listeners,omitempty"`
		TaskEventListeners    []ObjectModel       `json:"task_event_listeners,omitempty" yaml:"task_event_listeners,omitempty" toml:"task_event_listeners,omitempty"`
		Globals               []NamedObjectModel  `json:"globals,omitempty" yaml:"globals,omitempty" toml:"globals,omitempty"`
		WorkItemHandlers      []NamedObjectModel  `json:"work_item_handlers,omitempty" yaml:"work_item_handlers,omitempty" toml:"work_item_handlers,omitempty"`
		EnvironmentEntries    []NamedObjectModel  `json:"environment_entries,omitempty" yaml:"environment_entries,omitempty" toml:"environment_entries,omitempty"`
		Configuration         []NamedObjectModel  `json:"configuration,omitempty" yaml:"configuration,omitempty" toml:"configuration,omitempty"`
		RequiredRoles         map[string][]string `json:"required_roles,omitempty" yaml:"required_roles,omitempty" toml:"required_roles,omitempty"`
		Classes               []string            `json:"classes,omitempty" yaml:"classes,omitempty" toml:"classes,omitempty"`
	}

	// InvalidPersistenceModeError is returned when a PersistenceMode value is not recognized.
	InvalidPersistenceModeError struct {
		Value PersistenceMode
	}

	// InvalidAuditModeError is returned when an AuditMode value is not recognized.
	InvalidAuditModeError struct {
		Value AuditMode
	}

	// InvalidRuntimeStrategyError is returned when a RuntimeStrategy value is not recognized.
	InvalidRuntimeStrategyError struct {
		Value RuntimeStrategy
	}
)

// Error implements the error interface.
func (e *InvalidPersistenceModeError) Error() string {
	return fmt.Sprintf("invalid persistence mode %q (valid: NONE, JPA)", e.Value)
}

// Unwrap returns ErrInvalidPersistenceMode so callers can use errors.Is for programmatic detection.
func (e *InvalidPersistenceModeError) Unwrap() error { return ErrInvalidPersistenceMode }

// Error implements the error interface.
func (e *InvalidAuditModeError) Error() string {
	return fmt.Sprintf("invalid audit mode %q (valid: JPA, JMS, NONE)", e.Value)
}

// Unwrap returns ErrInvalidAuditMode so callers can use errors.Is for programmatic detection.
func (e *InvalidAuditModeError) Unwrap() error { return ErrInvalidAuditMode }

// Error implements the error interface.
func (e *InvalidRuntimeStrategyError) Error() string {
	return fmt.Sprintf("invalid runtime strategy %q (valid: SINGLETON, PER_REQUEST, PER_PROCESS_INSTANCE)", e.Value)
}

// Unwrap returns ErrInvalidRuntimeStrategy so callers can use errors.Is for programmatic detection.
func (e *InvalidRuntimeStrategyError) Unwrap() error { return ErrInvalidRuntimeStrategy }

// IsValid returns whether the PersistenceMode is a known mode, and a list of
// validation errors if it is not. The empty value is valid and means "not set".
func (m PersistenceMode) IsValid() (bool, []error) {
	switch m {
	case "", PersistenceNone, PersistenceJPA:
		return true, nil
	default:
		return false, []error{&InvalidPersistenceModeError{Value: m}}
	}
}

// String returns the string representation of the PersistenceMode.
func (m PersistenceMode) String() string { return string(m) }

// IsValid returns whether the AuditMode is a known mode, and a list of
// validation errors if it is not. The empty value is valid and means "not set".
func (m AuditMode) IsValid() (bool, []error) {
	switch m {
	case "", AuditJPA, AuditJMS, AuditNone:
		return true, nil
	default:
		return false, []error{&InvalidAuditModeError{Value: m}}
	}
}

// String returns the string representation of the AuditMode.
func (m AuditMode) String() string { return string(m) }

// IsValid returns whether the RuntimeStrategy is a known strategy, and a list
// of validation errors if it is not. The empty value is valid and means "not set".
func (s RuntimeStrategy) IsValid() (bool, []error) {
	switch s {
	case "", StrategySingleton, StrategyPerRequest, StrategyPerProcessInstance:
		return true, nil
	default:
		return false, []error{&InvalidRuntimeStrategyError{Value: s}}
	}
}

// String returns the string representation of the RuntimeStrategy.
func (s RuntimeStrategy) String() string { return string(s) }

// Default returns the host default descriptor for a persistence unit.
func Default(persistenceUnit string) *Descriptor {
	if persistenceUnit == "" {
		persistenceUnit = DefaultPersistenceUnit
	}
	return &Descriptor{
		PersistenceUnit:      persistenceUnit,
		AuditPersistenceUnit: persistenceUnit,
		AuditMode:            AuditJPA,
		PersistenceMode:      PersistenceJPA,
		RuntimeStrategy:      StrategySingleton,
	}
}

// IsValid validates every enumerated field and object model of the descriptor.
func (d *Descriptor) IsValid() (bool, []error) {
	var errs []error
	if ok, e := d.PersistenceMode.IsValid(); !ok {
		errs = append(errs, e...)
	}
	if ok, e := d.AuditMode.IsValid(); !ok {
		errs = append(errs, e...)
	}
	if ok, e := d.RuntimeStrategy.IsValid(); !ok {
		errs = append(errs, e...)
	}
	for _, m := range d.unnamed() {
		for _, om := range *m.list {
			if err := om.validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", m.field, err))
			}
		}
	}
	for _, m := range d.named() {
		for _, nm := range *m.list {
			if nm.Name == "" {
				errs = append(errs, fmt.Errorf("%s: %w", m.field, ErrUnnamedModel))
			}
			if err := nm.Model().validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s[%s]: %w", m.field, nm.Name, err))
			}
		}
	}
	return len(errs) == 0, errs
}

// RolesFor returns the roles required for an asset type, including the roles
// required for all types. Order follows first occurrence.
func (d *Descriptor) RolesFor(roleType string) []string {
	var roles []string
	for _, r := range append(slices.Clone(d.RequiredRoles[roleType]), d.RequiredRoles[RoleTypeAll]...) {
		if !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Clone returns a deep copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.MarshallingStrategies = cloneModels(d.MarshallingStrategies)
	c.EventListeners = cloneModels(d.EventListeners)
	c.TaskEventListeners = cloneModels(d.TaskEventListeners)
	c.Globals = cloneNamed(d.Globals)
	c.WorkItemHandlers = cloneNamed(d.WorkItemHandlers)
	c.EnvironmentEntries = cloneNamed(d.EnvironmentEntries)
	c.Configuration = cloneNamed(d.Configuration)
	if d.RequiredRoles != nil {
		c.RequiredRoles = make(map[string][]string, len(d.RequiredRoles))
		for k, v := range d.RequiredRoles {
			c.RequiredRoles[k] = slices.Clone(v)
		}
	}
	c.Classes = slices.Clone(d.Classes)
	return &c
}

// RoleTypes returns the role types with required roles, sorted.
func (d *Descriptor) RoleTypes() []string {
	return slices.Sorted(maps.Keys(d.RequiredRoles))
}

type (
	unnamedField struct {
		field string
		list  *[]ObjectModel
	}
	namedField struct {
		field string
		list  *[]NamedObjectModel
	}
)

func (d *Descriptor) unnamed() []unnamedField {
	return []unnamedField{
		{"marshalling_strategies", &d.MarshallingStrategies},
		{"event_listeners", &d.EventListeners},
		{"task_event_listeners", &d.TaskEventListeners},
	}
}

func (d *Descriptor) named() []namedField {
	return []namedField{
		{"globals", &d.Globals},
		{"work_item_handlers", &d.WorkItemHandlers},
		{"environment_entries", &d.EnvironmentEntries},
		{"configuration", &d.Configuration},
	}
}
