package pipeline

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies a stage failure.
type ErrorCategory string

const (
	// CategorySpec marks failures caused by the inputs: unreadable or
	// invalid specifications and traces. The user can fix these.
	CategorySpec ErrorCategory = "spec_error"

	// CategoryStage marks failures of a stage's own work: a test runner
	// that cannot execute, a bundle store that cannot be opened.
	CategoryStage ErrorCategory = "stage_error"

	// CategoryInternal marks bugs: panics and invariant violations
	// inside the pipeline itself.
	CategoryInternal ErrorCategory = "internal_error"
)

// StageError wraps a failure with the stage that produced it and its
// category. Every error that escapes a stage is one of these.
type StageError struct {
	Stage    string
	Category ErrorCategory
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Category, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewSpecError wraps an input-caused failure.
func NewSpecError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Category: CategorySpec, Err: err}
}

// NewStageError wraps a stage execution failure.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Category: CategoryStage, Err: err}
}

// NewInternalError wraps a pipeline bug.
func NewInternalError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Category: CategoryInternal, Err: err}
}

// Categorize extracts the category from an error chain, defaulting to
// stage_error for errors that never got wrapped.
func Categorize(err error) ErrorCategory {
	var se *StageError
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryStage
}

// IsSpecError reports whether the failure was caused by the inputs.
func IsSpecError(err error) bool {
	return Categorize(err) == CategorySpec
}
