// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
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
			err:      &ActionableError{Operation: "provision runtime"},
			expected: "failed to provision runtime",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "install package", Resource: "lodash"},
			expected: "failed to install package: lodash",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "load configuration",
				Resource:  "./config.cue",
				Cause:     errors.New("file not found"),
			},
			expected: "failed to load configuration: ./config.cue: file not found",
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

func TestActionableError_ErrorsIs(t *testing.T) {
	t.Parallel()

	cause := errors.New("specific error")
	wrapped := fmt.Errorf("outer: %w", &ActionableError{Operation: "test", Cause: cause})

	if !errors.Is(wrapped, cause) {
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
				Operation:   "install package",
				Resource:    "left-pad",
				Suggestions: []string{"Check the package name", "Verify registry access"},
			},
			contains: []string{
				"failed to install package: left-pad",
				"• Check the package name",
				"• Verify registry access",
			},
		},
		{
			name: "chain hidden without verbose",
			err: &ActionableError{
				Operation: "run script",
				Cause:     errors.New("timed out"),
			},
			contains: []string{"failed to run script: timed out"},
			excludes: []string{"Error chain:"},
		},
		{
			name: "nested chain verbose",
			err: &ActionableError{
				Operation: "start session",
				Cause: &ActionableError{
					Operation: "provision runtime",
					Cause:     errors.New("connection refused"),
				},
			},
			verbose: true,
			contains: []string{
				"Error chain:",
				"1. failed to provision runtime: connection refused",
				"2. connection refused",
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

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation should return a nil error")
	}

	cause := errors.New("parse error")
	ae := NewErrorContext().
		WithOperation("load configuration").
		WithResource("/etc/nodectl/config.cue").
		WithSuggestion("Check syntax").
		WithSuggestions("Verify permissions", "Use defaults").
		WithIssue(ConfigLoadFailedId).
		Wrap(cause).
		Build()
	if ae == nil {
		t.Fatal("Build() returned nil")
	}
	if ae.Operation != "load configuration" || ae.Resource != "/etc/nodectl/config.cue" {
		t.Errorf("unexpected context: %+v", ae)
	}
	if len(ae.Suggestions) != 3 || !ae.HasSuggestions() {
		t.Errorf("Suggestions = %v, want 3", ae.Suggestions)
	}
	if ae.Issue != ConfigLoadFailedId {
		t.Errorf("Issue = %d, want %d", ae.Issue, ConfigLoadFailedId)
	}
	if !errors.Is(ae, cause) {
		t.Error("Build() lost the cause")
	}
}

func TestWrapWithOperation(t *testing.T) {
	t.Parallel()

	cause := errors.New("original error")
	err := WrapWithOperation(cause, "write script")
	if err == nil || err.Operation != "write script" || !errors.Is(err, cause) {
		t.Fatalf("WrapWithOperation() = %v", err)
	}
	if WrapWithOperation(nil, "test") != nil {
		t.Error("WrapWithOperation(nil) should return nil")
	}
}
