//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package inmemory provides a process-local checkpoint saver.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/dataquest-ai/analysis-engine/checkpoint"
)

// Saver stores checkpoints in a mutex-guarded map. Suitable for tests
// and single-process deployments.
type Saver struct {
	mu      sync.RWMutex
	records map[string]*checkpoint.Record
}

// NewSaver creates an empty in-memory saver.
func NewSaver() *Saver {
	return &Saver{records: make(map[string]*checkpoint.Record)}
}

// Put implements the checkpoint.Saver interface.
func (s *Saver) Put(ctx context.Context, record *checkpoint.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := *record
	stored.State = append([]byte(nil), record.State...)
	stored.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[stored.RunID] = &stored
	return nil
}

// Get implements the checkpoint.Saver interface.
func (s *Saver) Get(ctx context.Context, runID string) (*checkpoint.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[runID]
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	copied := *record
	copied.State = append([]byte(nil), record.State...)
	return &copied, nil
}

// Delete implements the checkpoint.Saver interface.
func (s *Saver) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, runID)
	return nil
}

// List implements the checkpoint.Saver interface.
func (s *Saver) List(ctx context.Context) ([]*checkpoint.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*checkpoint.Record, 0, len(s.records))
	for _, record := range s.records {
		copied := *record
		copied.State = append([]byte(nil), record.State...)
		out = append(out, &copied)
	}
	return out, nil
}

var _ checkpoint.Saver = (*Saver)(nil)
