//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package checkpoint defines durable storage for workflow run snapshots.
//
// A checkpoint is the full serialized workflow state of one run, keyed by
// run id with upsert semantics. Runs suspended for approval are persisted
// here before the suspension is reported to the caller, so a process
// restart never loses them.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for the given run id.
var ErrNotFound = errors.New("checkpoint not found")

// Record is one persisted run snapshot. State holds the JSON-serialized
// workflow state; Status duplicates the run status so stores can be
// inspected without deserializing State.
type Record struct {
	RunID     string          `json:"run_id"`
	State     json.RawMessage `json:"state"`
	Status    string          `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Saver persists run checkpoints. Implementations must be safe for
// concurrent use across run ids; writes to the same id are
// last-writer-wins.
type Saver interface {
	// Put upserts the record keyed by its RunID.
	Put(ctx context.Context, record *Record) error

	// Get returns the record for the run id, or ErrNotFound.
	Get(ctx context.Context, runID string) (*Record, error)

	// Delete removes the record for the run id. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, runID string) error

	// List returns all stored records in unspecified order.
	List(ctx context.Context) ([]*Record, error)
}
