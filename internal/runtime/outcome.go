// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// OutcomeCompleted means the completion sentinel was observed.
	OutcomeCompleted Outcome = iota
	// OutcomeFailed means the runtime reported an error for the request.
	OutcomeFailed
	// OutcomeTimedOut means neither completion nor an error arrived in time.
	OutcomeTimedOut
	// OutcomeCancelled means the caller's context ended first.
	OutcomeCancelled
)

var (
	// ErrExecutionFailed is wrapped by ExecutionError for OutcomeFailed.
	ErrExecutionFailed = errors.New("execution failed")
	// ErrTimedOut is wrapped by ExecutionError for OutcomeTimedOut.
	ErrTimedOut = errors.New("execution timed out")
	// ErrEmptyResult is returned by ExecuteAndGetResult when the code completed
	// but left the handoff file empty, typically because it never assigned
	// the result variable.
	ErrEmptyResult = errors.New("execution produced an empty result")
	// ErrSyntax is returned when the syntax check rejects the code before it
	// reaches the runtime.
	ErrSyntax = errors.New("syntax error")
	// ErrClosed is returned by operations on a closed engine or session.
	ErrClosed = errors.New("runtime is closed")
)

type (
	// Outcome is the terminal state of one execution request.
	Outcome int

	// ExecutionError carries the diagnostics of a request that did not
	// complete. It matches ErrExecutionFailed, ErrTimedOut or the context
	// error with errors.Is, depending on Outcome.
	ExecutionError struct {
		Outcome Outcome
		// Lines are the error lines attributed to the request.
		Lines []string
		// Timeout is the bound that elapsed for OutcomeTimedOut.
		Timeout time.Duration
		// Cause is the context error for OutcomeCancelled.
		Cause error
	}
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	switch e.Outcome {
	case OutcomeFailed:
		return "execution failed: " + strings.Join(e.Lines, "\n")
	case OutcomeTimedOut:
		return fmt.Sprintf("execution timed out after %s", e.Timeout)
	case OutcomeCancelled:
		return fmt.Sprintf("execution cancelled: %v", e.Cause)
	default:
		return "execution error: " + e.Outcome.String()
	}
}

// Unwrap returns the sentinel for the outcome.
func (e *ExecutionError) Unwrap() error {
	switch e.Outcome {
	case OutcomeFailed:
		return ErrExecutionFailed
	case OutcomeTimedOut:
		return ErrTimedOut
	case OutcomeCancelled:
		return e.Cause
	default:
		return nil
	}
}
