//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package model

import (
	"errors"
	"fmt"
)

// ServiceError reports that the completion service could not be reached
// or did not answer in time, after the retry budget was spent.
type ServiceError struct {
	// Model is the model name the request was addressed to.
	Model string
	// Attempts is the number of attempts made, inclusive of the first.
	Attempts int
	// Err is the last transport error observed.
	Err error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("completion service %s unavailable after %d attempt(s): %v",
		e.Model, e.Attempts, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ServiceError) Unwrap() error { return e.Err }

// ParseError reports that the model answered but the output was not in
// the expected structured form.
type ParseError struct {
	// What describes the structure expected, e.g. "critic verdict JSON".
	What string
	// Err is the decoding error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model output (%s): %v", e.What, e.Err)
}

// Unwrap returns the underlying decoding error.
func (e *ParseError) Unwrap() error { return e.Err }

// IsServiceError reports whether err is (or wraps) a *ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
