// SPDX-License-Identifier: MPL-2.0

package classloader

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const classSuffix = ".class"

var (
	// ErrClassNotFound is returned when no source in the class space defines a class.
	ErrClassNotFound = errors.New("class not found")
	// ErrLinkage is returned when a class is present but cannot be linked,
	// e.g. its class file is corrupt or declares a different name.
	ErrLinkage = errors.New("class linkage failed")
	// ErrNoConstructor is returned when a class without a registered Go
	// constructor is asked to create an instance.
	ErrNoConstructor = errors.New("class has no registered constructor")
)

type (
	// Constructor builds an instance of a host type. args are the resolved
	// positional parameters of an object model; params carries the
	// deployment context (entity manager factory, class loader, ...).
	Constructor func(args []any, params map[string]any) (any, error)

	// Class is a loaded class.
	Class struct {
		// Name is the binary class name in dotted form (e.g. "com.acme.Order").
		Name string
		// SuperName is the dotted name of the super class, empty for host types.
		SuperName string
		// Annotations lists the dotted names of the annotation types on the class.
		Annotations []string
		// Source identifies where the class was loaded from: "system",
		// a jar path, or a module release id.
		Source string

		constructor Constructor
	}

	// NotFoundError reports a class that no source defines.
	NotFoundError struct {
		Name string
	}

	// LinkageError reports a class that was found but could not be linked.
	LinkageError struct {
		Name   string
		Source string
		Cause  error
	}
)

// HasAnnotation reports whether the class carries the given annotation type.
func (c *Class) HasAnnotation(annotation string) bool {
	return slices.Contains(c.Annotations, annotation)
}

// Instantiable reports whether New can build instances of the class.
func (c *Class) Instantiable() bool {
	return c.constructor != nil
}

// New creates an instance through the registered constructor.
func (c *Class) New(args []any, params map[string]any) (any, error) {
	if c.constructor == nil {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrNoConstructor)
	}
	return c.constructor(args, params)
}

// String returns the class name.
func (c *Class) String() string { return c.Name }

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("class %s not found in the project", e.Name)
}

// Unwrap returns ErrClassNotFound for errors.Is compatibility.
func (e *NotFoundError) Unwrap() error { return ErrClassNotFound }

// Error implements the error interface.
func (e *LinkageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("class %s from %s cannot be linked: %v", e.Name, e.Source, e.Cause)
	}
	return fmt.Sprintf("class %s from %s cannot be linked", e.Name, e.Source)
}

// Unwrap returns ErrLinkage for errors.Is compatibility.
func (e *LinkageError) Unwrap() error { return ErrLinkage }

// IsClassFile reports whether a resource path names a class file.
func IsClassFile(path string) bool {
	return strings.HasSuffix(path, classSuffix) && len(path) > len(classSuffix)
}

// ClassNameFromPath converts "com/acme/Order.class" into "com.acme.Order".
func ClassNameFromPath(path string) string {
	name := strings.TrimSuffix(path, classSuffix)
	name = strings.TrimPrefix(name, "/")
	return strings.ReplaceAll(name, "/", ".")
}

// PathFromClassName converts "com.acme.Order" into "com/acme/Order.class".
func PathFromClassName(name string) string {
	return strings.ReplaceAll(name, ".", "/") + classSuffix
}
