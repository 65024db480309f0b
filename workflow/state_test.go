//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeAppendsSequences(t *testing.T) {
	state := NewState("run-1", "question", "data.csv", nil)
	state.Merge(&Update{
		Trace:        []string{"first"},
		Conversation: []Turn{{Actor: "user", Text: "hi"}},
	})
	state.Merge(&Update{
		Trace:           []string{"second"},
		ToolInvocations: []ToolInvocation{{Tool: "aggregate_data"}},
		Critiques:       []Critique{{Score: 0.9, Accepted: true}},
	})

	assert.Equal(t, []string{"first", "second"}, state.Trace)
	assert.Len(t, state.Conversation, 1)
	assert.Len(t, state.ToolInvocations, 1)
	assert.Len(t, state.Critiques, 1)
}

func TestMergeScalarsLastWriteWins(t *testing.T) {
	state := NewState("run-1", "question", "data.csv", nil)

	answer := "draft"
	state.Merge(&Update{FinalAnswer: &answer, Status: StatusEvaluating})
	assert.Equal(t, "draft", state.FinalAnswer)
	assert.Equal(t, StatusEvaluating, state.Status)

	revised := "final"
	iterations := 2
	state.Merge(&Update{FinalAnswer: &revised, IterationCount: &iterations})
	assert.Equal(t, "final", state.FinalAnswer)
	assert.Equal(t, 2, state.IterationCount)
	// Unset fields stay untouched.
	assert.Equal(t, StatusEvaluating, state.Status)
}

func TestMergeClearFlags(t *testing.T) {
	state := NewState("run-1", "question", "data.csv", nil)
	state.Merge(&Update{
		PendingTool: &ToolRequest{Name: "aggregate_data"},
		ToolResult:  &ToolInvocation{Tool: "aggregate_data"},
		PendingApproval: &Approval{
			Kind:    ApprovalToolExecution,
			Preview: "compute mean",
		},
	})
	require.NotNil(t, state.PendingTool)

	state.Merge(&Update{
		ClearPendingTool:     true,
		ClearToolResult:      true,
		ClearPendingApproval: true,
	})
	assert.Nil(t, state.PendingTool)
	assert.Nil(t, state.ToolResult)
	assert.Nil(t, state.PendingApproval)
}

func TestMergeNilUpdateIsNoop(t *testing.T) {
	state := NewState("run-1", "question", "data.csv", nil)
	state.Merge(nil)
	assert.Equal(t, StatusPlanning, state.Status)
}

func TestCloneIsDeep(t *testing.T) {
	state := NewState("run-1", "question", "data.csv", []Turn{{Actor: "user", Text: "hi"}})
	state.Merge(&Update{
		Trace:       []string{"a"},
		PendingTool: &ToolRequest{Name: "filter_data"},
	})

	clone := state.Clone()
	clone.Trace = append(clone.Trace, "b")
	clone.PendingTool.Name = "other"
	clone.Conversation[0].Text = "changed"

	assert.Equal(t, []string{"a"}, state.Trace)
	assert.Equal(t, "filter_data", state.PendingTool.Name)
	assert.Equal(t, "hi", state.Conversation[0].Text)
}

func TestRecentConversationCapped(t *testing.T) {
	turns := make([]Turn, 30)
	for i := range turns {
		turns[i] = Turn{Actor: "user", Text: "turn"}
	}
	state := NewState("run-1", "question", "data.csv", turns)

	assert.Len(t, state.RecentConversation(), recentConversationLimit)
	// The stored log itself is never truncated.
	assert.Len(t, state.Conversation, 30)
}

func TestBestCritique(t *testing.T) {
	state := NewState("run-1", "question", "data.csv", nil)
	assert.Nil(t, state.BestCritique())

	state.Merge(&Update{Critiques: []Critique{
		{Score: 0.5, Answer: "first"},
		{Score: 0.7, Answer: "second"},
		{Score: 0.6, Answer: "third"},
	}})
	best := state.BestCritique()
	require.NotNil(t, best)
	assert.Equal(t, "second", best.Answer)
}

func TestStateJSONRoundTrip(t *testing.T) {
	state := NewState("run-1", "question", "data.csv", nil)
	state.Merge(&Update{
		Trace:           []string{"planner: requested tool aggregate_data"},
		PendingApproval: &Approval{Kind: ApprovalToolExecution, Preview: "compute mean"},
		Status:          StatusAwaitingApproval,
	})

	raw, err := json.Marshal(state)
	require.NoError(t, err)

	var restored State
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, state.RunID, restored.RunID)
	assert.Equal(t, StatusAwaitingApproval, restored.Status)
	require.NotNil(t, restored.PendingApproval)
	assert.Equal(t, "compute mean", restored.PendingApproval.Preview)
	assert.Equal(t, state.Trace, restored.Trace)
}
