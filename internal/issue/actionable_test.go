// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "deploy unit"},
			expected: "failed to deploy unit",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "deploy unit", Resource: "org.acme:orders:1.0"},
			expected: "failed to deploy unit: org.acme:orders:1.0",
		},
		{
			name:     "operation with cause",
			err:      &ActionableError{Operation: "load config", Cause: errors.New("unknown key")},
			expected: "failed to load config: unknown key",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "deploy unit",
				Resource:  "org.acme:orders:1.0",
				Cause:     errors.New("module not found"),
			},
			expected: "failed to deploy unit: org.acme:orders:1.0: module not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := &ActionableError{Operation: "test", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if (&ActionableError{Operation: "test"}).Unwrap() != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		verbose  bool
		contains []string
		excludes []string
	}{
		{
			name: "suggestions",
			err: &ActionableError{
				Operation:   "deploy unit",
				Resource:    "org.acme:orders:1.0",
				Suggestions: []string{"Run 'kdeploy install'", "Check repository.path"},
			},
			contains: []string{
				"failed to deploy unit: org.acme:orders:1.0",
				"• Run 'kdeploy install'",
				"• Check repository.path",
			},
		},
		{
			name:     "no error chain in non-verbose",
			err:      &ActionableError{Operation: "load config", Cause: errors.New("syntax error")},
			contains: []string{"failed to load config: syntax error"},
			excludes: []string{"Error chain:"},
		},
		{
			name: "nested error chain verbose",
			err: &ActionableError{
				Operation: "redeploy unit",
				Cause: &ActionableError{
					Operation: "resolve module",
					Cause:     errors.New("archive not found"),
				},
			},
			verbose: true,
			contains: []string{
				"Error chain:",
				"1. failed to resolve module: archive not found",
				"2. archive not found",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tt.err.Format(tt.verbose)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("Format() missing %q\ngot:\n%s", s, got)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("Format() should not contain %q\ngot:\n%s", s, got)
				}
			}
		})
	}
}

func TestActionableError_Issue(t *testing.T) {
	t.Parallel()

	linked := NewErrorContext().
		WithOperation("deploy unit").
		WithIssue(ModuleNotFoundId).
		Build()
	if got := linked.Issue(); got == nil || got.Id() != ModuleNotFoundId {
		t.Errorf("Issue() = %v, want the module-not-found entry", got)
	}
	if (&ActionableError{Operation: "deploy unit"}).Issue() != nil {
		t.Error("Issue() without an id should be nil")
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("some/path").Build() != nil {
		t.Error("Build() without an operation should return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without an operation should return nil")
	}

	cause := errors.New("parse error")
	err := NewErrorContext().
		WithOperation("load config").
		WithResource("/etc/kdeploy/config.yaml").
		WithSuggestion("Check syntax").
		WithSuggestions("Verify permissions", "Run 'kdeploy config init'").
		WithIssue(ConfigLoadFailedId).
		Wrap(cause).
		Build()

	if err.Operation != "load config" || err.Resource != "/etc/kdeploy/config.yaml" {
		t.Errorf("Build() = %+v", err)
	}
	if len(err.Suggestions) != 3 || !err.HasSuggestions() {
		t.Errorf("Suggestions = %v, want 3", err.Suggestions)
	}
	if err.IssueID != ConfigLoadFailedId {
		t.Errorf("IssueID = %d, want %d", err.IssueID, ConfigLoadFailedId)
	}
	if !errors.Is(err, cause) {
		t.Error("Cause should be the wrapped error")
	}

	var ae *ActionableError
	if !errors.As(NewErrorContext().WithOperation("test").BuildError(), &ae) {
		t.Error("BuildError() should return *ActionableError")
	}
}

func TestErrorContext_Reuse(t *testing.T) {
	t.Parallel()

	ctx := NewErrorContext().
		WithOperation("install module").
		WithResource("orders-1.0.kjar")

	err1 := ctx.Wrap(errors.New("error 1")).Build()
	err2 := ctx.Wrap(errors.New("error 2")).Build()
	if err1.Cause.Error() == err2.Cause.Error() {
		t.Error("reused context should allow different causes")
	}
	if err1.Operation != err2.Operation {
		t.Error("reused context should preserve operation")
	}
}
