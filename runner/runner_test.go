//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataquest-ai/analysis-engine/checkpoint"
	"github.com/dataquest-ai/analysis-engine/checkpoint/inmemory"
	"github.com/dataquest-ai/analysis-engine/dataset"
	"github.com/dataquest-ai/analysis-engine/tool"
	"github.com/dataquest-ai/analysis-engine/workflow"
)

// fakePlanner answers every plan turn with a fixed update.
type fakePlanner struct {
	plan      func(ctx context.Context, state *workflow.State) (*workflow.Update, error)
	interpret func(ctx context.Context, state *workflow.State) (*workflow.Update, error)
}

func (p *fakePlanner) Plan(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	return p.plan(ctx, state)
}

func (p *fakePlanner) Interpret(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	if p.interpret == nil {
		return nil, fmt.Errorf("unexpected interpret call")
	}
	return p.interpret(ctx, state)
}

// fakeCritic replays a fixed verdict sequence.
type fakeCritic struct {
	verdicts []workflow.Critique
	calls    int
}

func (c *fakeCritic) Evaluate(_ context.Context, state *workflow.State) (*workflow.Update, error) {
	if c.calls >= len(c.verdicts) {
		return nil, fmt.Errorf("no scripted verdict for call %d", c.calls)
	}
	verdict := c.verdicts[c.calls]
	c.calls++
	verdict.Answer = state.FinalAnswer
	update := &workflow.Update{Critiques: []workflow.Critique{verdict}}
	if !verdict.Accepted {
		update.Conversation = []workflow.Turn{{Actor: "critic", Text: verdict.Rationale}}
	}
	return update, nil
}

func directAnswerPlanner(answer string) *fakePlanner {
	return &fakePlanner{
		plan: func(context.Context, *workflow.State) (*workflow.Update, error) {
			return &workflow.Update{FinalAnswer: &answer}, nil
		},
	}
}

func acceptingCritic() *fakeCritic {
	return &fakeCritic{verdicts: []workflow.Critique{{Score: 0.9, Accepted: true}}}
}

func writeSalesCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	data := "region,sales\nnorth,10\nsouth,30\nwest,50\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func newExecutor() *tool.Executor {
	return tool.NewExecutor(tool.NewDefaultRegistry(), dataset.NewCSVAccessor())
}

func newRunner(t *testing.T, planner workflow.Planner, critic workflow.Critic,
	saver checkpoint.Saver, opts ...workflow.MachineOption) *Runner {
	t.Helper()
	machine := workflow.NewMachine(planner, critic, newExecutor(), saver, opts...)
	r, err := New(machine, saver, WithPoolSize(4))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStartRunCompletes(t *testing.T) {
	saver := inmemory.NewSaver()
	r := newRunner(t, directAnswerPlanner("There are 3 rows."), acceptingCritic(), saver)

	handle, err := r.StartRun(context.Background(), StartRequest{
		Request:    "how many rows?",
		DatasetRef: writeSalesCSV(t),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, handle.RunID())

	state, err := handle.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, state.Status)
	assert.Equal(t, "There are 3 rows.", state.FinalAnswer)

	// The terminal state is both observable and durable.
	status, err := r.GetStatus(context.Background(), handle.RunID())
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, status.Status)
	record, err := saver.Get(context.Background(), handle.RunID())
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StatusCompleted), record.Status)
}

func TestStartRunMaxIterations(t *testing.T) {
	critic := &fakeCritic{verdicts: []workflow.Critique{
		{Score: 0.5, Accepted: false, Rationale: "weak"},
	}}
	r := newRunner(t, directAnswerPlanner("draft"), critic, inmemory.NewSaver())

	handle, err := r.StartRun(context.Background(), StartRequest{
		Request:       "question",
		DatasetRef:    writeSalesCSV(t),
		MaxIterations: 1,
	})
	require.NoError(t, err)

	state, err := handle.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, state.Status)
	assert.True(t, state.Unverified)
	assert.Len(t, state.Critiques, 1)
}

// A suspended run must be resumable by a different Runner sharing only
// the checkpoint store, as after a process restart.
func TestResumeSurvivesRestart(t *testing.T) {
	saver := inmemory.NewSaver()
	planner := &fakePlanner{
		plan: func(_ context.Context, state *workflow.State) (*workflow.Update, error) {
			if state.PendingApproval != nil || len(state.ToolInvocations) > 0 {
				return nil, fmt.Errorf("unexpected extra plan call")
			}
			return &workflow.Update{PendingTool: &workflow.ToolRequest{
				Name:      "aggregate_data",
				Arguments: json.RawMessage(`{"column":"sales","operation":"sum"}`),
			}}, nil
		},
		interpret: func(_ context.Context, state *workflow.State) (*workflow.Update, error) {
			answer := fmt.Sprintf("The total is %v.", state.ToolResult.Output.(*tool.AggregationOutput).Result)
			return &workflow.Update{FinalAnswer: &answer}, nil
		},
	}

	first := newRunner(t, planner, acceptingCritic(), saver,
		workflow.WithApprovalPolicy(workflow.ApproveAllTools()))
	handle, err := first.StartRun(context.Background(), StartRequest{
		Request:    "total sales?",
		DatasetRef: writeSalesCSV(t),
	})
	require.NoError(t, err)
	state, err := handle.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, workflow.StatusAwaitingApproval, state.Status)

	// A fresh runner over the same store resumes the run.
	second := newRunner(t, planner, acceptingCritic(), saver,
		workflow.WithApprovalPolicy(workflow.ApproveAllTools()))
	resumed, err := second.Resume(context.Background(), handle.RunID(), workflow.Decision{Approved: true})
	require.NoError(t, err)
	final, err := resumed.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, final.Status)
	assert.Contains(t, final.FinalAnswer, "90")
}

func TestResumeNotSuspended(t *testing.T) {
	saver := inmemory.NewSaver()
	r := newRunner(t, directAnswerPlanner("answer"), acceptingCritic(), saver)

	handle, err := r.StartRun(context.Background(), StartRequest{
		Request:    "question",
		DatasetRef: writeSalesCSV(t),
	})
	require.NoError(t, err)
	_, err = handle.Wait(waitCtx(t))
	require.NoError(t, err)

	_, err = r.Resume(context.Background(), handle.RunID(), workflow.Decision{Approved: true})
	assert.ErrorIs(t, err, workflow.ErrNotSuspended)
}

func TestGetStatusUnknownRun(t *testing.T) {
	r := newRunner(t, directAnswerPlanner("answer"), acceptingCritic(), inmemory.NewSaver())
	_, err := r.GetStatus(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestGetStatusFromCheckpointOnly(t *testing.T) {
	saver := inmemory.NewSaver()
	state := workflow.NewState("restored-run", "question", "data.csv", nil)
	state.Status = workflow.StatusAwaitingApproval
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, saver.Put(context.Background(), &checkpoint.Record{
		RunID:  "restored-run",
		State:  raw,
		Status: string(state.Status),
	}))

	r := newRunner(t, directAnswerPlanner("answer"), acceptingCritic(), saver)
	status, err := r.GetStatus(context.Background(), "restored-run")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusAwaitingApproval, status.Status)
}

func TestCancelExecutingRun(t *testing.T) {
	saver := inmemory.NewSaver()
	started := make(chan struct{})
	planner := &fakePlanner{
		plan: func(ctx context.Context, _ *workflow.State) (*workflow.Update, error) {
			close(started)
			// Hold the planning node until the run is cancelled; the
			// machine notices at the next node boundary.
			<-ctx.Done()
			answer := "too late"
			return &workflow.Update{FinalAnswer: &answer}, nil
		},
	}
	r := newRunner(t, planner, acceptingCritic(), saver)

	handle, err := r.StartRun(context.Background(), StartRequest{
		Request:    "question",
		DatasetRef: writeSalesCSV(t),
	})
	require.NoError(t, err)
	<-started
	require.NoError(t, r.Cancel(context.Background(), handle.RunID()))

	state, err := handle.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, state.Status)
	assert.Equal(t, workflow.FailReasonCancelled, state.FailReason)
}

func TestCancelSuspendedRun(t *testing.T) {
	saver := inmemory.NewSaver()
	planner := &fakePlanner{
		plan: func(context.Context, *workflow.State) (*workflow.Update, error) {
			return &workflow.Update{PendingTool: &workflow.ToolRequest{
				Name:      "aggregate_data",
				Arguments: json.RawMessage(`{"column":"sales","operation":"sum"}`),
			}}, nil
		},
	}
	r := newRunner(t, planner, acceptingCritic(), saver,
		workflow.WithApprovalPolicy(workflow.ApproveAllTools()))

	handle, err := r.StartRun(context.Background(), StartRequest{
		Request:    "total sales?",
		DatasetRef: writeSalesCSV(t),
	})
	require.NoError(t, err)
	state, err := handle.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, workflow.StatusAwaitingApproval, state.Status)

	require.NoError(t, r.Cancel(context.Background(), handle.RunID()))

	status, err := r.GetStatus(context.Background(), handle.RunID())
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, status.Status)
	assert.Equal(t, workflow.FailReasonCancelled, status.FailReason)
	assert.Nil(t, status.PendingApproval)

	// A cancelled suspension can no longer be resumed.
	_, err = r.Resume(context.Background(), handle.RunID(), workflow.Decision{Approved: true})
	assert.ErrorIs(t, err, workflow.ErrNotSuspended)
}

// Terminal runs must not accumulate in the tracking map of a long-lived
// process; their history lives in the checkpoint store.
func TestTerminalHandlesPruned(t *testing.T) {
	saver := inmemory.NewSaver()
	r := newRunner(t, directAnswerPlanner("answer"), acceptingCritic(), saver)

	handle, err := r.StartRun(context.Background(), StartRequest{
		Request:    "question",
		DatasetRef: writeSalesCSV(t),
	})
	require.NoError(t, err)
	_, err = handle.Wait(waitCtx(t))
	require.NoError(t, err)

	r.mu.RLock()
	_, tracked := r.handles[handle.RunID()]
	r.mu.RUnlock()
	assert.False(t, tracked)

	// The run stays observable through the checkpoint store.
	status, err := r.GetStatus(context.Background(), handle.RunID())
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, status.Status)
}

// Suspended runs stay tracked until they reach a terminal state.
func TestSuspendedHandleRetainedUntilTerminal(t *testing.T) {
	saver := inmemory.NewSaver()
	planner := &fakePlanner{
		plan: func(context.Context, *workflow.State) (*workflow.Update, error) {
			return &workflow.Update{PendingTool: &workflow.ToolRequest{
				Name:      "aggregate_data",
				Arguments: json.RawMessage(`{"column":"sales","operation":"sum"}`),
			}}, nil
		},
	}
	r := newRunner(t, planner, acceptingCritic(), saver,
		workflow.WithApprovalPolicy(workflow.ApproveAllTools()))

	handle, err := r.StartRun(context.Background(), StartRequest{
		Request:    "total sales?",
		DatasetRef: writeSalesCSV(t),
	})
	require.NoError(t, err)
	state, err := handle.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, workflow.StatusAwaitingApproval, state.Status)

	r.mu.RLock()
	_, tracked := r.handles[handle.RunID()]
	r.mu.RUnlock()
	assert.True(t, tracked)

	// Cancelling the suspension terminates the run and drops the handle.
	require.NoError(t, r.Cancel(context.Background(), handle.RunID()))
	r.mu.RLock()
	_, tracked = r.handles[handle.RunID()]
	r.mu.RUnlock()
	assert.False(t, tracked)
}

func TestCancelUnknownRun(t *testing.T) {
	r := newRunner(t, directAnswerPlanner("answer"), acceptingCritic(), inmemory.NewSaver())
	err := r.Cancel(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
