//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package critic

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataquest-ai/analysis-engine/model"
	"github.com/dataquest-ai/analysis-engine/workflow"
)

// fakeModel replays scripted text responses and records the requests it
// received.
type fakeModel struct {
	responses []string
	requests  []*model.Request
}

func (m *fakeModel) GenerateContent(_ context.Context, request *model.Request) (*model.Response, error) {
	m.requests = append(m.requests, request)
	if len(m.requests) > len(m.responses) {
		return nil, fmt.Errorf("no scripted response for call %d", len(m.requests))
	}
	text := m.responses[len(m.requests)-1]
	return &model.Response{
		Choices: []model.Choice{{Message: model.NewAssistantMessage(text)}},
	}, nil
}

func (m *fakeModel) Info() model.Info { return model.Info{Name: "fake"} }

func candidateState(answer string) *workflow.State {
	state := workflow.NewState("run-1", "average sales by region?", "sales.csv", nil)
	state.FinalAnswer = answer
	return state
}

func TestParseVerdictPlainJSON(t *testing.T) {
	v, err := parseVerdict(`{"score": 0.9, "critique": "solid", "reroute_to": null}`)
	require.NoError(t, err)
	assert.Equal(t, 0.9, v.Score)
	assert.Equal(t, "solid", v.Critique)
	assert.Nil(t, v.RerouteTo)
}

func TestParseVerdictJSONFence(t *testing.T) {
	content := "Here is my assessment:\n```json\n{\"score\": 0.65, \"critique\": \"incomplete\"}\n```\nThanks."
	v, err := parseVerdict(content)
	require.NoError(t, err)
	assert.Equal(t, 0.65, v.Score)
	assert.Equal(t, "incomplete", v.Critique)
}

func TestParseVerdictBareFence(t *testing.T) {
	content := "```\n{\"score\": 0.7, \"critique\": \"ok\"}\n```"
	v, err := parseVerdict(content)
	require.NoError(t, err)
	assert.Equal(t, 0.7, v.Score)
}

func TestParseVerdictClampsScore(t *testing.T) {
	v, err := parseVerdict(`{"score": 1.4, "critique": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Score)

	v, err = parseVerdict(`{"score": -0.2, "critique": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Score)
}

func TestParseVerdictDefaultRationale(t *testing.T) {
	v, err := parseVerdict(`{"score": 0.9}`)
	require.NoError(t, err)
	assert.Equal(t, "evaluation completed", v.Critique)
}

func TestParseVerdictInvalid(t *testing.T) {
	_, err := parseVerdict("I think the answer is fine.")
	assert.Error(t, err)
}

func TestEvaluateAccepts(t *testing.T) {
	m := &fakeModel{responses: []string{
		`{"score": 0.92, "critique": "accurate and complete", "reroute_to": null}`,
	}}
	c := New(m)

	update, err := c.Evaluate(context.Background(), candidateState("Average sales: 30."))
	require.NoError(t, err)
	require.Len(t, update.Critiques, 1)
	verdict := update.Critiques[0]
	assert.True(t, verdict.Accepted)
	assert.Equal(t, 0.92, verdict.Score)
	assert.Empty(t, verdict.RerouteTo)
	assert.Equal(t, "Average sales: 30.", verdict.Answer)
	assert.Empty(t, update.Conversation)
}

func TestEvaluateRejects(t *testing.T) {
	m := &fakeModel{responses: []string{
		`{"score": 0.5, "critique": "misses the grouping", "reroute_to": null,
		  "improvement_suggestions": ["break the average down by region"]}`,
	}}
	c := New(m)

	update, err := c.Evaluate(context.Background(), candidateState("Average sales: 30."))
	require.NoError(t, err)
	require.Len(t, update.Critiques, 1)
	verdict := update.Critiques[0]
	assert.False(t, verdict.Accepted)
	assert.Equal(t, "planner", verdict.RerouteTo)

	require.Len(t, update.Conversation, 1)
	turn := update.Conversation[0]
	assert.Equal(t, "critic", turn.Actor)
	assert.Contains(t, turn.Text, "0.50")
	assert.Contains(t, turn.Text, "misses the grouping")
	assert.Contains(t, turn.Text, "break the average down by region")
}

func TestEvaluateRerouteTargetFromVerdict(t *testing.T) {
	m := &fakeModel{responses: []string{
		`{"score": 0.4, "critique": "wrong tool", "reroute_to": "planner"}`,
	}}
	c := New(m)

	update, err := c.Evaluate(context.Background(), candidateState("answer"))
	require.NoError(t, err)
	assert.Equal(t, "planner", update.Critiques[0].RerouteTo)
}

func TestEvaluateRepromptsOnUnparseableVerdict(t *testing.T) {
	m := &fakeModel{responses: []string{
		"The response looks good to me, about an 8 out of 10.",
		`{"score": 0.85, "critique": "good", "reroute_to": null}`,
	}}
	c := New(m)

	update, err := c.Evaluate(context.Background(), candidateState("answer"))
	require.NoError(t, err)
	assert.True(t, update.Critiques[0].Accepted)
	require.Len(t, m.requests, 2)

	retry := m.requests[1].Messages
	// The retry carries the bad reply plus a corrective instruction.
	assert.Equal(t, model.RoleAssistant, retry[len(retry)-2].Role)
	assert.Contains(t, retry[len(retry)-1].Content, "not valid JSON")
}

func TestEvaluateParseErrorAfterReprompt(t *testing.T) {
	m := &fakeModel{responses: []string{"not json", "still not json"}}
	c := New(m)

	_, err := c.Evaluate(context.Background(), candidateState("answer"))
	require.Error(t, err)
	assert.True(t, model.IsParseError(err))
	assert.Len(t, m.requests, 2)
}

func TestEvaluateCustomThreshold(t *testing.T) {
	m := &fakeModel{responses: []string{
		`{"score": 0.6, "critique": "ok", "reroute_to": null}`,
	}}
	c := New(m, WithThreshold(0.5))

	update, err := c.Evaluate(context.Background(), candidateState("answer"))
	require.NoError(t, err)
	assert.True(t, update.Critiques[0].Accepted)
}

func TestEvaluateDisabled(t *testing.T) {
	m := &fakeModel{}
	c := New(m, WithDisabled(true))

	update, err := c.Evaluate(context.Background(), candidateState("answer"))
	require.NoError(t, err)
	require.Len(t, update.Critiques, 1)
	assert.True(t, update.Critiques[0].Accepted)
	assert.Equal(t, 1.0, update.Critiques[0].Score)
	// The model was never consulted.
	assert.Empty(t, m.requests)
}

func TestEvaluateEmptyAnswer(t *testing.T) {
	c := New(&fakeModel{})
	_, err := c.Evaluate(context.Background(), candidateState(""))
	assert.Error(t, err)
}
