// SPDX-License-Identifier: MPL-2.0

package adminserver

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidHostAddress is the sentinel error wrapped by InvalidHostAddressError.
	ErrInvalidHostAddress = errors.New("invalid host address")
	// ErrInvalidTokenValue is the sentinel error wrapped by InvalidTokenValueError.
	ErrInvalidTokenValue = errors.New("invalid token value")
	// ErrInvalidListenPort is returned for ports outside 0-65535.
	ErrInvalidListenPort = errors.New("invalid listen port")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid admin server config")
)

type (
	// HostAddress is the address (IP or hostname) the server binds to.
	HostAddress string

	// TokenValue is an operator authentication token.
	TokenValue string

	// ListenPort is a TCP port. Zero selects a free port.
	ListenPort int

	// InvalidHostAddressError is returned when a HostAddress is empty or
	// whitespace-only.
	InvalidHostAddressError struct {
		Value HostAddress
	}

	// InvalidTokenValueError is returned when a TokenValue is empty or
	// whitespace-only.
	InvalidTokenValueError struct {
		Value TokenValue
	}

	// InvalidListenPortError is returned when a ListenPort is out of range.
	InvalidListenPortError struct {
		Value ListenPort
	}

	// InvalidConfigError collects the field errors of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// String returns the string representation of the HostAddress.
func (h HostAddress) String() string { return string(h) }

// IsValid reports whether h is non-blank.
func (h HostAddress) IsValid() (bool, []error) {
	if strings.TrimSpace(string(h)) == "" {
		return false, []error{&InvalidHostAddressError{Value: h}}
	}
	return true, nil
}

// String returns the string representation of the TokenValue.
func (t TokenValue) String() string { return string(t) }

// IsValid reports whether t is non-blank.
func (t TokenValue) IsValid() (bool, []error) {
	if strings.TrimSpace(string(t)) == "" {
		return false, []error{&InvalidTokenValueError{Value: t}}
	}
	return true, nil
}

// IsValid reports whether p is within 0-65535.
func (p ListenPort) IsValid() (bool, []error) {
	if p < 0 || p > 65535 {
		return false, []error{&InvalidListenPortError{Value: p}}
	}
	return true, nil
}

// IsValid checks the bind address, port and token TTL. A failing config
// yields a single *InvalidConfigError carrying the field errors.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if ok, fieldErrs := c.Host.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if ok, fieldErrs := c.Port.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if c.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("token ttl %s: must not be negative", c.TokenTTL))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidHostAddressError.
func (e *InvalidHostAddressError) Error() string {
	return fmt.Sprintf("invalid host address %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidHostAddress for errors.Is() compatibility.
func (e *InvalidHostAddressError) Unwrap() error { return ErrInvalidHostAddress }

// Error implements the error interface for InvalidTokenValueError.
func (e *InvalidTokenValueError) Error() string {
	return fmt.Sprintf("invalid token value %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidTokenValue for errors.Is() compatibility.
func (e *InvalidTokenValueError) Unwrap() error { return ErrInvalidTokenValue }

// Error implements the error interface for InvalidListenPortError.
func (e *InvalidListenPortError) Error() string {
	return fmt.Sprintf("invalid listen port %d: must be between 0 and 65535", e.Value)
}

// Unwrap returns ErrInvalidListenPort for errors.Is() compatibility.
func (e *InvalidListenPortError) Unwrap() error { return ErrInvalidListenPort }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid admin server config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
