//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package tool

import (
	"errors"
	"fmt"
)

// ValidationError reports that a tool request did not conform to the
// tool's declared schema, or named an unknown tool. It is recovered
// locally: the failed invocation is recorded and fed back to the
// planner, never raised to the caller.
type ValidationError struct {
	Tool   string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Reason)
}

// ExecutionError reports that a validated tool failed while running,
// e.g. a missing column or an empty dataset. Like validation errors it
// is recorded and fed back to the planner for re-planning.
type ExecutionError struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsExecutionError reports whether err is (or wraps) an *ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
