// SPDX-License-Identifier: MPL-2.0

package kmodule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Latest is the version placeholder resolved to the highest installed version.
const Latest Version = "LATEST"

var (
	// ErrInvalidGroupID is the sentinel error wrapped by InvalidGroupIDError.
	ErrInvalidGroupID = errors.New("invalid group id")
	// ErrInvalidArtifactID is the sentinel error wrapped by InvalidArtifactIDError.
	ErrInvalidArtifactID = errors.New("invalid artifact id")
	// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrInvalidReleaseID is returned when a "group:artifact:version" string cannot be parsed.
	ErrInvalidReleaseID = errors.New("invalid release id")

	coordinatePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)
	versionPattern    = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-+]*$`)
)

type (
	// GroupID is the dotted group coordinate of a module (e.g., "org.acme").
	GroupID string

	// ArtifactID is the artifact coordinate of a module (e.g., "orders").
	ArtifactID string

	// Version is the version coordinate of a module (e.g., "1.0.0" or LATEST).
	Version string

	// ReleaseID identifies one release of a module.
	ReleaseID struct {
		GroupID    GroupID    `json:"group"`
		ArtifactID ArtifactID `json:"artifact"`
		Version    Version    `json:"version"`
	}

	// InvalidGroupIDError is returned when a GroupID value is malformed.
	InvalidGroupIDError struct {
		Value GroupID
	}

	// InvalidArtifactIDError is returned when an ArtifactID value is malformed.
	InvalidArtifactIDError struct {
		Value ArtifactID
	}

	// InvalidVersionError is returned when a Version value is malformed.
	InvalidVersionError struct {
		Value Version
	}
)

// Error implements the error interface.
func (e *InvalidGroupIDError) Error() string {
	return fmt.Sprintf("invalid group id %q (must be alphanumeric with '.', '_' or '-')", e.Value)
}

// Unwrap returns ErrInvalidGroupID so callers can use errors.Is for programmatic detection.
func (e *InvalidGroupIDError) Unwrap() error { return ErrInvalidGroupID }

// Error implements the error interface.
func (e *InvalidArtifactIDError) Error() string {
	return fmt.Sprintf("invalid artifact id %q (must be alphanumeric with '.', '_' or '-')", e.Value)
}

// Unwrap returns ErrInvalidArtifactID so callers can use errors.Is for programmatic detection.
func (e *InvalidArtifactIDError) Unwrap() error { return ErrInvalidArtifactID }

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Value)
}

// Unwrap returns ErrInvalidVersion so callers can use errors.Is for programmatic detection.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// IsValid returns whether the GroupID is well formed, and a list of
// validation errors if it is not.
func (g GroupID) IsValid() (bool, []error) {
	if !coordinatePattern.MatchString(string(g)) {
		return false, []error{&InvalidGroupIDError{Value: g}}
	}
	return true, nil
}

// String returns the string representation of the GroupID.
func (g GroupID) String() string { return string(g) }

// Path returns the group as a slash separated path ("org.acme" -> "org/acme").
func (g GroupID) Path() string { return strings.ReplaceAll(string(g), ".", "/") }

// IsValid returns whether the ArtifactID is well formed, and a list of
// validation errors if it is not.
func (a ArtifactID) IsValid() (bool, []error) {
	if !coordinatePattern.MatchString(string(a)) {
		return false, []error{&InvalidArtifactIDError{Value: a}}
	}
	return true, nil
}

// String returns the string representation of the ArtifactID.
func (a ArtifactID) String() string { return string(a) }

// IsValid returns whether the Version is well formed, and a list of
// validation errors if it is not.
func (v Version) IsValid() (bool, []error) {
	if !versionPattern.MatchString(string(v)) {
		return false, []error{&InvalidVersionError{Value: v}}
	}
	return true, nil
}

// String returns the string representation of the Version.
func (v Version) String() string { return string(v) }

// IsLatest reports whether the version is the LATEST placeholder.
func (v Version) IsLatest() bool { return v == Latest }

// NewReleaseID builds a ReleaseID from plain strings.
func NewReleaseID(group, artifact, version string) ReleaseID {
	return ReleaseID{GroupID: GroupID(group), ArtifactID: ArtifactID(artifact), Version: Version(version)}
}

// ParseReleaseID parses the external form "group:artifact:version".
func ParseReleaseID(s string) (ReleaseID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ReleaseID{}, fmt.Errorf("%w: %q (expected group:artifact:version)", ErrInvalidReleaseID, s)
	}
	id := NewReleaseID(parts[0], parts[1], parts[2])
	if ok, errs := id.IsValid(); !ok {
		return ReleaseID{}, fmt.Errorf("%w: %q: %w", ErrInvalidReleaseID, s, errors.Join(errs...))
	}
	return id, nil
}

// IsValid returns whether every coordinate is well formed, and a list of
// validation errors for the ones that are not.
func (r ReleaseID) IsValid() (bool, []error) {
	var errs []error
	if ok, e := r.GroupID.IsValid(); !ok {
		errs = append(errs, e...)
	}
	if ok, e := r.ArtifactID.IsValid(); !ok {
		errs = append(errs, e...)
	}
	if ok, e := r.Version.IsValid(); !ok {
		errs = append(errs, e...)
	}
	return len(errs) == 0, errs
}

// String returns the external form "group:artifact:version".
func (r ReleaseID) String() string {
	return fmt.Sprintf("%s:%s:%s", r.GroupID, r.ArtifactID, r.Version)
}

// Key identifies the module regardless of version ("group:artifact").
func (r ReleaseID) Key() string {
	return fmt.Sprintf("%s:%s", r.GroupID, r.ArtifactID)
}

// WithVersion returns a copy of the release id pinned to another version.
func (r ReleaseID) WithVersion(v Version) ReleaseID {
	r.Version = v
	return r
}
