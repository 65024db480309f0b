//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dataquest-ai/analysis-engine/checkpoint"
	"github.com/dataquest-ai/analysis-engine/log"
	"github.com/dataquest-ai/analysis-engine/telemetry"
	"github.com/dataquest-ai/analysis-engine/tool"
)

// Planner decides the next action of a run. Plan is called when no tool
// result is pending and must produce either a pending tool call or a
// direct final answer. Interpret is called with a tool result present
// and must produce a final answer without re-invoking the tool.
type Planner interface {
	Plan(ctx context.Context, state *State) (*Update, error)
	Interpret(ctx context.Context, state *State) (*Update, error)
}

// Critic scores a candidate final answer. Its update must append exactly
// one Critique; rejection feedback belongs in the conversation so the
// next planning turn sees it.
type Critic interface {
	Evaluate(ctx context.Context, state *State) (*Update, error)
}

// Machine drives one run through the planning / executing_tool /
// evaluating cycle until it completes, fails, or suspends for approval.
// A Machine is stateless across runs and safe for concurrent use.
type Machine struct {
	planner  Planner
	critic   Critic
	executor *tool.Executor
	saver    checkpoint.Saver
	approval ApprovalPolicy
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithApprovalPolicy installs the approval policy. Defaults to
// ApproveNone.
func WithApprovalPolicy(policy ApprovalPolicy) MachineOption {
	return func(m *Machine) { m.approval = policy }
}

// NewMachine assembles the orchestrator from its node implementations.
func NewMachine(
	planner Planner,
	critic Critic,
	executor *tool.Executor,
	saver checkpoint.Saver,
	opts ...MachineOption,
) *Machine {
	m := &Machine{
		planner:  planner,
		critic:   critic,
		executor: executor,
		saver:    saver,
		approval: ApproveNone(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// maxNodeVisits bounds a single Run invocation so a planner that keeps
// emitting failing tool calls cannot loop indefinitely.
const maxNodeVisits = 25

// Run advances the state until it reaches a terminal status or suspends
// at awaiting_approval. The returned state is the same pointer the
// caller passed in; the error is non-nil only when a required durable
// write failed, in which case the state is already marked failed.
func (m *Machine) Run(ctx context.Context, state *State) (*State, error) {
	for visits := 0; ; visits++ {
		if visits >= maxNodeVisits {
			m.fail(ctx, state, fmt.Sprintf("node visit limit %d exceeded", maxNodeVisits))
			return state, nil
		}
		if state.Status.Terminal() || state.Status == StatusAwaitingApproval {
			return state, nil
		}
		if ctx.Err() != nil {
			m.fail(ctx, state, FailReasonCancelled)
			return state, nil
		}

		var err error
		switch state.Status {
		case StatusPlanning:
			err = m.stepPlanning(ctx, state)
		case StatusExecutingTool:
			err = m.stepExecuting(ctx, state)
		case StatusEvaluating:
			err = m.stepEvaluating(ctx, state)
		default:
			m.fail(ctx, state, fmt.Sprintf("unknown status %q", state.Status))
			return state, nil
		}
		if err != nil {
			return state, err
		}
	}
}

// Resume applies an approval decision to a suspended run and continues
// it. On approval the gated step executes; on rejection the feedback is
// folded into the conversation and the run replans rather than silently
// retrying the same action.
func (m *Machine) Resume(ctx context.Context, state *State, decision Decision) (*State, error) {
	if state.Status != StatusAwaitingApproval || state.PendingApproval == nil {
		return state, ErrNotSuspended
	}
	kind := state.PendingApproval.Kind

	if decision.Approved {
		update := &Update{
			Trace:                []string{fmt.Sprintf("approval: %s approved", kind)},
			ClearPendingApproval: true,
		}
		switch kind {
		case ApprovalToolExecution:
			update.Status = StatusExecutingTool
		case ApprovalRecommendation:
			update.Status = StatusCompleted
		default:
			state.Merge(update)
			m.fail(ctx, state, fmt.Sprintf("unknown approval kind %q", kind))
			return state, nil
		}
		state.Merge(update)
		if state.Status == StatusCompleted {
			return state, m.finalize(ctx, state)
		}
		return m.Run(ctx, state)
	}

	feedback := decision.Feedback
	if feedback == "" {
		feedback = "the proposed action was rejected"
	}
	answer := ""
	state.Merge(&Update{
		Trace:                []string{fmt.Sprintf("approval: %s rejected, replanning", kind)},
		Conversation:         []Turn{{Actor: "user", Text: feedback}},
		ClearPendingApproval: true,
		ClearPendingTool:     true,
		FinalAnswer:          &answer,
		Status:               StatusPlanning,
	})
	return m.Run(ctx, state)
}

// stepPlanning runs one planner turn: the interpret phase when a tool
// result is waiting, the plan phase otherwise.
func (m *Machine) stepPlanning(ctx context.Context, state *State) error {
	spanCtx, span := telemetry.Tracer.Start(ctx, "workflow.planning",
		trace.WithAttributes(attribute.String("run.id", state.RunID)))
	defer span.End()

	var (
		update *Update
		err    error
	)
	if state.ToolResult != nil {
		update, err = m.planner.Interpret(spanCtx, state)
	} else {
		update, err = m.planner.Plan(spanCtx, state)
	}
	if err != nil {
		m.fail(ctx, state, fmt.Sprintf("planner: %v", err))
		return nil
	}
	state.Merge(update)
	// The interpret phase consumes the tool result at this boundary.
	state.Merge(&Update{ClearToolResult: true})

	switch {
	case state.PendingTool != nil:
		if m.approval.RequiresApproval(ApprovalToolExecution, state) {
			preview := tool.Preview(state.PendingTool.Name, state.PendingTool.Arguments)
			return m.suspend(ctx, state, &Approval{Kind: ApprovalToolExecution, Preview: preview})
		}
		state.Merge(&Update{Status: StatusExecutingTool})
	case state.FinalAnswer != "":
		state.Merge(&Update{Status: StatusEvaluating})
	default:
		m.fail(ctx, state, "planner produced neither a tool call nor an answer")
	}
	return nil
}

// stepExecuting runs the pending tool call. Tool failures are captured
// into the state and routed back to the planner, never raised.
func (m *Machine) stepExecuting(ctx context.Context, state *State) error {
	if state.PendingTool == nil {
		m.fail(ctx, state, "executing_tool entered without a pending tool")
		return nil
	}
	spanCtx, span := telemetry.Tracer.Start(ctx, "workflow.executing_tool",
		trace.WithAttributes(
			attribute.String("run.id", state.RunID),
			attribute.String("tool.name", state.PendingTool.Name),
		))
	defer span.End()

	pending := state.PendingTool
	result := m.executor.Execute(spanCtx, state.DatasetRef, tool.Request{
		Name:      pending.Name,
		Arguments: pending.Arguments,
	})

	invocation := ToolInvocation{
		Tool:             result.Tool,
		Arguments:        result.Arguments,
		Output:           result.Output,
		Duration:         result.Duration,
		Sampled:          result.Sampled,
		SampleRows:       result.SampleRows,
		OriginalRowCount: result.OriginalRowCount,
	}
	if result.Err != nil {
		invocation.Error = result.Err.Error()
	}

	update := &Update{
		ToolInvocations:  []ToolInvocation{invocation},
		ClearPendingTool: true,
		Status:           StatusPlanning,
	}
	if result.Sampled {
		update.Trace = append(update.Trace, fmt.Sprintf(
			"executor: sampled %d of %d rows before running %s",
			result.SampleRows, result.OriginalRowCount, result.Tool))
	}
	if result.Err != nil {
		// Surface the failure to the next planning turn instead of the
		// caller.
		update.Trace = append(update.Trace,
			fmt.Sprintf("executor: tool %s failed: %v", result.Tool, result.Err))
		update.Conversation = []Turn{{
			Actor: "tool",
			Text:  fmt.Sprintf("tool %s failed: %v", result.Tool, result.Err),
		}}
	} else {
		update.Trace = append(update.Trace,
			fmt.Sprintf("executor: tool %s completed in %v", result.Tool, result.Duration))
		update.ToolResult = &invocation
	}
	state.Merge(update)
	return nil
}

// stepEvaluating runs the critic over the candidate answer and applies
// the accept / reroute / budget-exhaustion decision.
func (m *Machine) stepEvaluating(ctx context.Context, state *State) error {
	spanCtx, span := telemetry.Tracer.Start(ctx, "workflow.evaluating",
		trace.WithAttributes(attribute.String("run.id", state.RunID)))
	defer span.End()

	update, err := m.critic.Evaluate(spanCtx, state)
	if err != nil {
		m.fail(ctx, state, fmt.Sprintf("critic: %v", err))
		return nil
	}
	state.Merge(update)
	if len(state.Critiques) == 0 {
		m.fail(ctx, state, "critic produced no verdict")
		return nil
	}
	verdict := state.Critiques[len(state.Critiques)-1]

	if verdict.Accepted {
		state.Merge(&Update{Trace: []string{
			fmt.Sprintf("critic: accepted with score %.2f", verdict.Score)}})
		return m.complete(ctx, state)
	}

	iterations := state.IterationCount + 1
	state.Merge(&Update{
		IterationCount: &iterations,
		Trace: []string{fmt.Sprintf(
			"critic: rejected with score %.2f (iteration %d of %d)",
			verdict.Score, iterations, state.MaxIterations)},
	})

	if iterations >= state.MaxIterations {
		// The budget is spent: terminate with the best answer seen so
		// far rather than loop, marked as unverified.
		best := state.BestCritique()
		answer := state.FinalAnswer
		if best != nil && best.Answer != "" {
			answer = best.Answer
		}
		unverified := true
		bestScore := 0.0
		if best != nil {
			bestScore = best.Score
		}
		state.Merge(&Update{
			FinalAnswer: &answer,
			Unverified:  &unverified,
			Trace: []string{fmt.Sprintf(
				"critic: iteration budget exhausted, returning best answer (score %.2f) unverified",
				bestScore)},
		})
		return m.complete(ctx, state)
	}

	// Reroute: the rejection feedback is already in the conversation,
	// clear the candidate and replan.
	answer := ""
	state.Merge(&Update{
		FinalAnswer:     &answer,
		ClearToolResult: true,
		Trace:           []string{"critic: rerouting to planner"},
		Status:          StatusPlanning,
	})
	return nil
}

// complete finishes the run, passing accepted answers through the
// recommendation approval gate when configured.
func (m *Machine) complete(ctx context.Context, state *State) error {
	if m.approval.RequiresApproval(ApprovalRecommendation, state) {
		return m.suspend(ctx, state, &Approval{
			Kind:    ApprovalRecommendation,
			Preview: state.FinalAnswer,
		})
	}
	state.Merge(&Update{
		Status: StatusCompleted,
		Trace:  []string{"workflow: run completed"},
	})
	return m.finalize(ctx, state)
}

// suspend durably records the state before the suspension is observable.
// A persist failure is fatal: the run fails instead of reporting an
// approval wait that a restart would lose.
func (m *Machine) suspend(ctx context.Context, state *State, approval *Approval) error {
	state.Merge(&Update{
		PendingApproval: approval,
		Status:          StatusAwaitingApproval,
		Trace: []string{fmt.Sprintf(
			"workflow: awaiting approval (%s): %s", approval.Kind, approval.Preview)},
	})
	if err := m.persist(ctx, state); err != nil {
		persistErr := &CheckpointPersistError{RunID: state.RunID, Err: err}
		m.fail(ctx, state, persistErr.Error())
		return persistErr
	}
	return nil
}

// finalize persists a terminal state. Persist failures on an accepted
// answer are fatal for the same durability reason as suspension.
func (m *Machine) finalize(ctx context.Context, state *State) error {
	if err := m.persist(ctx, state); err != nil {
		persistErr := &CheckpointPersistError{RunID: state.RunID, Err: err}
		m.fail(ctx, state, persistErr.Error())
		return persistErr
	}
	return nil
}

// fail marks the run failed with the reason on the trace and persists
// best-effort. Persistence here must survive caller cancellation.
func (m *Machine) fail(ctx context.Context, state *State, reason string) {
	state.Merge(&Update{
		Status:               StatusFailed,
		FailReason:           &reason,
		ClearPendingTool:     true,
		ClearToolResult:      true,
		ClearPendingApproval: true,
		Trace:                []string{fmt.Sprintf("workflow: failed: %s", reason)},
	})
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.persist(persistCtx, state); err != nil {
		log.Errorf("failed to persist failed run %s: %v", state.RunID, err)
	}
}

func (m *Machine) persist(ctx context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return m.saver.Put(ctx, &checkpoint.Record{
		RunID:     state.RunID,
		State:     raw,
		Status:    string(state.Status),
		UpdatedAt: time.Now(),
	})
}
