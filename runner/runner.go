//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package runner manages concurrent analysis runs: it starts workflow
// executions on a bounded goroutine pool, tracks live handles, and
// resumes suspended runs from the checkpoint store.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/dataquest-ai/analysis-engine/checkpoint"
	"github.com/dataquest-ai/analysis-engine/log"
	"github.com/dataquest-ai/analysis-engine/workflow"
)

const defaultPoolSize = 64

// ErrRunNotFound is returned when no live handle or checkpoint exists
// for the given run id.
var ErrRunNotFound = errors.New("run not found")

// StartRequest describes a new analysis run.
type StartRequest struct {
	Request      string
	DatasetRef   string
	Conversation []workflow.Turn
	// MaxIterations bounds the critic retry cycle; zero uses the
	// workflow default.
	MaxIterations int
}

// RunHandle tracks one submitted run. The workflow machine owns the
// live state exclusively while executing; the handle holds the last
// settled snapshot (initial, suspended, or terminal).
type RunHandle struct {
	runID  string
	cancel context.CancelFunc

	mu    sync.RWMutex
	state *workflow.State
	err   error
	done  chan struct{}
}

// RunID returns the run's unique id.
func (h *RunHandle) RunID() string { return h.runID }

// Done is closed when the run settles: terminal state or suspension.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Snapshot returns a copy of the last settled state.
func (h *RunHandle) Snapshot() *workflow.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Clone()
}

// Wait blocks until the run settles or the context expires.
func (h *RunHandle) Wait(ctx context.Context) (*workflow.State, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Clone(), h.err
}

func (h *RunHandle) settle(state *workflow.State, err error) {
	h.mu.Lock()
	h.state = state.Clone()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Runner is the external boundary of the orchestration core. An HTTP
// API layer calls StartRun / Resume / GetStatus / Cancel; everything
// else stays internal.
type Runner struct {
	machine *workflow.Machine
	saver   checkpoint.Saver
	pool    *ants.Pool

	mu      sync.RWMutex
	handles map[string]*RunHandle
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	poolSize int
}

// WithPoolSize bounds the number of concurrently executing runs.
func WithPoolSize(size int) Option {
	return func(o *runnerOptions) { o.poolSize = size }
}

// New creates a Runner executing runs on a bounded goroutine pool.
func New(machine *workflow.Machine, saver checkpoint.Saver, opts ...Option) (*Runner, error) {
	o := &runnerOptions{poolSize: defaultPoolSize}
	for _, opt := range opts {
		opt(o)
	}
	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create run pool: %w", err)
	}
	return &Runner{
		machine: machine,
		saver:   saver,
		pool:    pool,
		handles: make(map[string]*RunHandle),
	}, nil
}

// StartRun creates a new run and submits it for execution. The run
// outlives the caller's context; use Cancel to stop it.
func (r *Runner) StartRun(ctx context.Context, request StartRequest) (*RunHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	state := workflow.NewState(runID, request.Request, request.DatasetRef, request.Conversation)
	if request.MaxIterations > 0 {
		state.MaxIterations = request.MaxIterations
	}
	return r.submit(state, func(runCtx context.Context) (*workflow.State, error) {
		return r.machine.Run(runCtx, state)
	})
}

// Resume applies an approval decision to a suspended run and continues
// it. The run is found in the live handle map first, then in the
// checkpoint store, so suspended runs survive a process restart.
func (r *Runner) Resume(ctx context.Context, runID string, decision workflow.Decision) (*RunHandle, error) {
	state, err := r.loadState(ctx, runID)
	if err != nil {
		return nil, err
	}
	if state.Status != workflow.StatusAwaitingApproval {
		return nil, workflow.ErrNotSuspended
	}
	return r.submit(state, func(runCtx context.Context) (*workflow.State, error) {
		return r.machine.Resume(runCtx, state, decision)
	})
}

// GetStatus returns a snapshot of the run's last settled state, falling
// back to the checkpoint store for runs this process is not tracking.
func (r *Runner) GetStatus(ctx context.Context, runID string) (*workflow.State, error) {
	r.mu.RLock()
	handle, ok := r.handles[runID]
	r.mu.RUnlock()
	if ok {
		return handle.Snapshot(), nil
	}
	return r.loadCheckpoint(ctx, runID)
}

// Cancel stops a run between node boundaries. Executing runs fail with
// reason "cancelled" at their next boundary; suspended runs are marked
// failed in the checkpoint store so they are never left unresumable.
func (r *Runner) Cancel(ctx context.Context, runID string) error {
	r.mu.RLock()
	handle, ok := r.handles[runID]
	r.mu.RUnlock()

	if ok {
		handle.cancel()
		select {
		case <-handle.done:
			// Already settled: fall through to checkpoint handling for
			// suspended runs.
		default:
			return nil
		}
	}

	state, err := r.loadState(ctx, runID)
	if err != nil {
		return err
	}
	if state.Status.Terminal() {
		return nil
	}
	reason := workflow.FailReasonCancelled
	state.Merge(&workflow.Update{
		Status:               workflow.StatusFailed,
		FailReason:           &reason,
		ClearPendingApproval: true,
		ClearPendingTool:     true,
		Trace:                []string{"workflow: failed: cancelled"},
	})
	if err := r.persist(ctx, state); err != nil {
		return err
	}
	if ok {
		handle.mu.Lock()
		handle.state = state.Clone()
		handle.mu.Unlock()
		r.mu.Lock()
		delete(r.handles, runID)
		r.mu.Unlock()
	}
	return nil
}

// Close releases the run pool. In-flight runs finish first.
func (r *Runner) Close() {
	r.pool.Release()
}

// submit registers a handle for the state and schedules the run on the
// pool. Handles of terminal runs are dropped from the tracking map once
// settled; the checkpoint store is the system of record for history, so
// the map only grows with live and suspended runs.
func (r *Runner) submit(state *workflow.State, run func(context.Context) (*workflow.State, error)) (*RunHandle, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	handle := &RunHandle{
		runID:  state.RunID,
		cancel: cancel,
		state:  state.Clone(),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.handles[state.RunID] = handle
	r.mu.Unlock()

	if err := r.pool.Submit(func() {
		defer cancel()
		final, err := run(runCtx)
		if err != nil {
			log.Errorf("run %s finished with error: %v", state.RunID, err)
		}
		if final != nil && final.Status.Terminal() {
			r.mu.Lock()
			delete(r.handles, state.RunID)
			r.mu.Unlock()
		}
		handle.settle(final, err)
	}); err != nil {
		cancel()
		r.mu.Lock()
		delete(r.handles, state.RunID)
		r.mu.Unlock()
		return nil, fmt.Errorf("submit run %s: %w", state.RunID, err)
	}
	return handle, nil
}

// loadState resolves the freshest known state for a run: a settled live
// handle first, the checkpoint store otherwise.
func (r *Runner) loadState(ctx context.Context, runID string) (*workflow.State, error) {
	r.mu.RLock()
	handle, ok := r.handles[runID]
	r.mu.RUnlock()
	if ok {
		select {
		case <-handle.done:
			return handle.Snapshot(), nil
		default:
			// Still executing: the store holds the last durable state.
		}
	}
	return r.loadCheckpoint(ctx, runID)
}

func (r *Runner) loadCheckpoint(ctx context.Context, runID string) (*workflow.State, error) {
	record, err := r.saver.Get(ctx, runID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var state workflow.State
	if err := json.Unmarshal(record.State, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint for run %s: %w", runID, err)
	}
	return &state, nil
}

func (r *Runner) persist(ctx context.Context, state *workflow.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return r.saver.Put(ctx, &checkpoint.Record{
		RunID:     state.RunID,
		State:     raw,
		Status:    string(state.Status),
		UpdatedAt: time.Now(),
	})
}
