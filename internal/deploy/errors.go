// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUnitKind is returned when a unit is not backed by a module artifact.
	ErrInvalidUnitKind = errors.New("invalid deployment unit kind")
	// ErrAlreadyDeployed is returned when deploying an id that is registered.
	ErrAlreadyDeployed = errors.New("deployment unit already deployed")
	// ErrNotDeployed is returned when undeploying an id that is not registered.
	ErrNotDeployed = errors.New("deployment unit not deployed")
	// ErrMalformedEncoding is returned for text resources that are not valid UTF-8.
	ErrMalformedEncoding = errors.New("resource is not valid UTF-8")
	// ErrProcessUnreadable is returned when a process resource yields no definition.
	ErrProcessUnreadable = errors.New("process definition could not be read")
	// ErrConfigurationNotString is returned when a configuration entry does not
	// resolve to a string.
	ErrConfigurationNotString = errors.New("configuration entry must resolve to a string")
	// ErrNotAMarshallingStrategy is returned when a declared marshalling
	// strategy does not implement runtime.MarshallingStrategy.
	ErrNotAMarshallingStrategy = errors.New("object is not a marshalling strategy")
	// ErrInvalidUnitID is returned when a unit identifier cannot be parsed.
	ErrInvalidUnitID = errors.New("invalid deployment unit identifier")
)

type (
	// DeploymentError wraps every failure of a deploy call.
	DeploymentError struct {
		UnitID string
		Cause  error
	}

	// InvalidUnitKindError reports a unit of an unsupported kind.
	InvalidUnitKindError struct {
		Kind string
	}

	// ResourceError reports a module resource that could not be deployed.
	ResourceError struct {
		Module string
		Path   string
		Cause  error
	}
)

// Error implements the error interface.
func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deploy %s: %v", e.UnitID, e.Cause)
}

// Unwrap returns the cause.
func (e *DeploymentError) Unwrap() error { return e.Cause }

// Error implements the error interface.
func (e *InvalidUnitKindError) Error() string {
	return fmt.Sprintf("invalid deployment unit provided: %s", e.Kind)
}

// Unwrap returns ErrInvalidUnitKind so callers can use errors.Is for programmatic detection.
func (e *InvalidUnitKindError) Unwrap() error { return ErrInvalidUnitKind }

// Error implements the error interface.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s of %s: %v", e.Path, e.Module, e.Cause)
}

// Unwrap returns the cause.
func (e *ResourceError) Unwrap() error { return e.Cause }
