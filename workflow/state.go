//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package workflow implements the orchestration state machine that routes
// an analysis request through planning, tool execution, quality
// evaluation with bounded retry, and an optional human approval gate.
package workflow

import (
	"encoding/json"
	"time"
)

// Status enumerates the lifecycle of a run. Completed and failed are
// terminal; awaiting approval is a durable suspension point.
type Status string

const (
	// StatusPlanning means the planner is deciding the next action.
	StatusPlanning Status = "planning"
	// StatusExecutingTool means a pending tool call is being executed.
	StatusExecutingTool Status = "executing_tool"
	// StatusEvaluating means a candidate answer is under critic review.
	StatusEvaluating Status = "evaluating"
	// StatusAwaitingApproval means the run is suspended for a human
	// decision and has been durably checkpointed.
	StatusAwaitingApproval Status = "awaiting_approval"
	// StatusCompleted is the successful terminal state.
	StatusCompleted Status = "completed"
	// StatusFailed is the unsuccessful terminal state.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultMaxIterations bounds the critic reroute cycle.
const DefaultMaxIterations = 3

// recentConversationLimit caps how many prior turns are handed to the
// agents as context. The stored conversation itself is never truncated.
const recentConversationLimit = 20

// Turn is one entry of the conversation log.
type Turn struct {
	Actor string `json:"actor"`
	Text  string `json:"text"`
}

// ToolRequest is an outstanding tool call awaiting execution.
type ToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolInvocation records one completed tool call, successful or not.
type ToolInvocation struct {
	Tool             string          `json:"tool"`
	Arguments        json.RawMessage `json:"arguments,omitempty"`
	Output           any             `json:"output,omitempty"`
	Error            string          `json:"error,omitempty"`
	Duration         time.Duration   `json:"duration"`
	Sampled          bool            `json:"sampled,omitempty"`
	SampleRows       int             `json:"sample_rows,omitempty"`
	OriginalRowCount int             `json:"original_row_count,omitempty"`
}

// Critique records one quality-gate verdict. Answer is the candidate
// that was evaluated, kept so the best-scoring answer can be recovered
// when the iteration budget runs out.
type Critique struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	RerouteTo string  `json:"reroute_to,omitempty"`
	Accepted  bool    `json:"accepted"`
	Answer    string  `json:"answer,omitempty"`
}

// ApprovalKind classifies what kind of action is awaiting confirmation.
type ApprovalKind string

const (
	// ApprovalToolExecution gates a pending tool call.
	ApprovalToolExecution ApprovalKind = "tool_execution"
	// ApprovalRecommendation gates an accepted final answer.
	ApprovalRecommendation ApprovalKind = "recommendation"
)

// Approval describes the action a suspended run is waiting on.
type Approval struct {
	Kind    ApprovalKind `json:"kind"`
	Preview string       `json:"preview"`
}

// State is the full record of one analysis run. It is mutated only by
// the orchestrator merging node updates, and is JSON-serializable so the
// whole state acts as the persisted continuation for suspend/resume.
type State struct {
	RunID      string `json:"run_id"`
	Request    string `json:"request"`
	DatasetRef string `json:"dataset_ref"`

	// Append-only fields.
	Conversation    []Turn           `json:"conversation,omitempty"`
	Trace           []string         `json:"trace,omitempty"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
	Critiques       []Critique       `json:"critiques,omitempty"`

	// At most one of PendingTool / ToolResult is populated per turn.
	PendingTool *ToolRequest    `json:"pending_tool,omitempty"`
	ToolResult  *ToolInvocation `json:"tool_result,omitempty"`

	IterationCount int `json:"iteration_count"`
	MaxIterations  int `json:"max_iterations"`

	PendingApproval *Approval `json:"pending_approval,omitempty"`

	FinalAnswer string `json:"final_answer,omitempty"`
	// Unverified marks an answer accepted by budget exhaustion rather
	// than by the quality gate.
	Unverified bool   `json:"unverified,omitempty"`
	Status     Status `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
}

// NewState creates the initial state of a run. MaxIterations defaults
// to DefaultMaxIterations when zero.
func NewState(runID, request, datasetRef string, conversation []Turn) *State {
	return &State{
		RunID:         runID,
		Request:       request,
		DatasetRef:    datasetRef,
		Conversation:  append([]Turn(nil), conversation...),
		MaxIterations: DefaultMaxIterations,
		Status:        StatusPlanning,
	}
}

// Update is a partial state produced by one node. Nil pointer fields and
// empty slices mean "no change"; slice fields append; Clear* flags reset
// the corresponding pointer field, since a nil pointer already means
// "leave as is".
type Update struct {
	Conversation    []Turn
	Trace           []string
	ToolInvocations []ToolInvocation
	Critiques       []Critique

	PendingTool      *ToolRequest
	ClearPendingTool bool
	ToolResult       *ToolInvocation
	ClearToolResult  bool

	IterationCount *int

	PendingApproval      *Approval
	ClearPendingApproval bool

	FinalAnswer *string
	Unverified  *bool
	Status      Status
	FailReason  *string
}

// Merge folds a partial update into the state. Append-only fields grow,
// everything else is last-write-wins. This is the single place the
// per-field reducer rules live.
func (s *State) Merge(update *Update) {
	if update == nil {
		return
	}
	s.Conversation = append(s.Conversation, update.Conversation...)
	s.Trace = append(s.Trace, update.Trace...)
	s.ToolInvocations = append(s.ToolInvocations, update.ToolInvocations...)
	s.Critiques = append(s.Critiques, update.Critiques...)

	if update.PendingTool != nil {
		s.PendingTool = update.PendingTool
	}
	if update.ClearPendingTool {
		s.PendingTool = nil
	}
	if update.ToolResult != nil {
		s.ToolResult = update.ToolResult
	}
	if update.ClearToolResult {
		s.ToolResult = nil
	}
	if update.IterationCount != nil {
		s.IterationCount = *update.IterationCount
	}
	if update.PendingApproval != nil {
		s.PendingApproval = update.PendingApproval
	}
	if update.ClearPendingApproval {
		s.PendingApproval = nil
	}
	if update.FinalAnswer != nil {
		s.FinalAnswer = *update.FinalAnswer
	}
	if update.Unverified != nil {
		s.Unverified = *update.Unverified
	}
	if update.Status != "" {
		s.Status = update.Status
	}
	if update.FailReason != nil {
		s.FailReason = *update.FailReason
	}
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *State) Clone() *State {
	copied := *s
	copied.Conversation = append([]Turn(nil), s.Conversation...)
	copied.Trace = append([]string(nil), s.Trace...)
	copied.ToolInvocations = append([]ToolInvocation(nil), s.ToolInvocations...)
	copied.Critiques = append([]Critique(nil), s.Critiques...)
	if s.PendingTool != nil {
		pending := *s.PendingTool
		copied.PendingTool = &pending
	}
	if s.ToolResult != nil {
		result := *s.ToolResult
		copied.ToolResult = &result
	}
	if s.PendingApproval != nil {
		approval := *s.PendingApproval
		copied.PendingApproval = &approval
	}
	return &copied
}

// RecentConversation returns the most recent turns used as agent
// context, without truncating the stored log.
func (s *State) RecentConversation() []Turn {
	if len(s.Conversation) <= recentConversationLimit {
		return s.Conversation
	}
	return s.Conversation[len(s.Conversation)-recentConversationLimit:]
}

// BestCritique returns the highest-scoring critique, or nil if none
// exist. Ties keep the earliest.
func (s *State) BestCritique() *Critique {
	var best *Critique
	for i := range s.Critiques {
		if best == nil || s.Critiques[i].Score > best.Score {
			best = &s.Critiques[i]
		}
	}
	return best
}
