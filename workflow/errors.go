//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package workflow

import (
	"errors"
	"fmt"
)

// FailReasonCancelled is recorded when a caller cancels a run between
// node boundaries.
const FailReasonCancelled = "cancelled"

// CheckpointPersistError means the run could not be durably recorded at
// a point where durability is required (suspension or terminal write).
// It is fatal: the run must fail rather than report a suspension that a
// restart would lose.
type CheckpointPersistError struct {
	RunID string
	Err   error
}

// Error implements the error interface.
func (e *CheckpointPersistError) Error() string {
	return fmt.Sprintf("checkpoint persist failed for run %s: %v", e.RunID, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *CheckpointPersistError) Unwrap() error { return e.Err }

// IsCheckpointPersistError checks whether err is a CheckpointPersistError.
func IsCheckpointPersistError(err error) bool {
	var persistErr *CheckpointPersistError
	return errors.As(err, &persistErr)
}

// ErrNotSuspended is returned when a resume decision arrives for a run
// that is not awaiting approval.
var ErrNotSuspended = errors.New("run is not awaiting approval")
