//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package critic implements the quality gate agent: it scores a
// candidate answer and decides pass or reroute.
package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dataquest-ai/analysis-engine/log"
	"github.com/dataquest-ai/analysis-engine/model"
	"github.com/dataquest-ai/analysis-engine/workflow"
)

// DefaultThreshold is the minimum score for an answer to pass.
const DefaultThreshold = 0.8

// defaultRerouteTarget is where rejected answers are sent for another
// attempt.
const defaultRerouteTarget = "planner"

// evaluationTemperature keeps verdicts consistent across calls.
const evaluationTemperature = 0.2

// Critic evaluates candidate answers against the original request.
type Critic struct {
	model     model.Model
	threshold float64
	disabled  bool
}

// Option configures a Critic.
type Option func(*Critic)

// WithThreshold overrides the acceptance threshold.
func WithThreshold(threshold float64) Option {
	return func(c *Critic) { c.threshold = threshold }
}

// WithDisabled turns the quality gate off: every answer is accepted
// with a synthetic passing critique.
func WithDisabled(disabled bool) Option {
	return func(c *Critic) { c.disabled = disabled }
}

// New creates a Critic backed by the given model.
func New(m model.Model, opts ...Option) *Critic {
	c := &Critic{model: m, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// verdict is the JSON structure the model is asked to produce.
type verdict struct {
	Score                  float64  `json:"score"`
	Critique               string   `json:"critique"`
	RerouteTo              *string  `json:"reroute_to"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
}

// Evaluate implements the workflow.Critic interface. It appends exactly
// one critique; on rejection the rationale is folded into the
// conversation so the next planning turn sees it. An unparseable
// verdict gets one re-prompt before the turn fails.
func (c *Critic) Evaluate(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	if state.FinalAnswer == "" {
		return nil, fmt.Errorf("no candidate answer to evaluate")
	}
	if c.disabled {
		return &workflow.Update{
			Critiques: []workflow.Critique{{
				Score:     1.0,
				Rationale: "quality gate disabled",
				Accepted:  true,
				Answer:    state.FinalAnswer,
			}},
			Trace: []string{"critic: quality gate disabled, accepting"},
		}, nil
	}

	messages := c.buildMessages(state)
	request := &model.Request{Messages: messages}
	temperature := evaluationTemperature
	request.Temperature = &temperature

	response, err := c.model.GenerateContent(ctx, request)
	if err != nil {
		return nil, err
	}
	v, parseErr := parseVerdict(response.Text())
	if parseErr != nil {
		// One corrective re-prompt, then the run fails.
		log.Debugf("critic verdict unparseable for run %s, re-prompting: %v", state.RunID, parseErr)
		retryRequest := &model.Request{
			Messages: append(messages,
				model.NewAssistantMessage(response.Text()),
				model.NewUserMessage("Your previous reply was not valid JSON: "+parseErr.Error()+
					". Respond with only the JSON object, no surrounding prose."),
			),
		}
		retryRequest.Temperature = &temperature
		response, err = c.model.GenerateContent(ctx, retryRequest)
		if err != nil {
			return nil, err
		}
		v, parseErr = parseVerdict(response.Text())
		if parseErr != nil {
			return nil, &model.ParseError{What: "critic verdict", Err: parseErr}
		}
	}

	accepted := v.Score >= c.threshold
	critique := workflow.Critique{
		Score:     v.Score,
		Rationale: v.Critique,
		Accepted:  accepted,
		Answer:    state.FinalAnswer,
	}
	update := &workflow.Update{}
	if !accepted {
		critique.RerouteTo = defaultRerouteTarget
		if v.RerouteTo != nil && *v.RerouteTo != "" {
			critique.RerouteTo = *v.RerouteTo
		}
		update.Conversation = []workflow.Turn{{
			Actor: "critic",
			Text:  rejectionFeedback(v),
		}}
	}
	update.Critiques = []workflow.Critique{critique}
	return update, nil
}

// rejectionFeedback turns a failing verdict into a conversation turn the
// planner can act on.
func rejectionFeedback(v verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The previous answer scored %.2f and was not accepted. %s", v.Score, v.Critique)
	if len(v.ImprovementSuggestions) > 0 {
		b.WriteString(" Suggestions: ")
		b.WriteString(strings.Join(v.ImprovementSuggestions, "; "))
	}
	return b.String()
}

// parseVerdict extracts the JSON verdict, tolerating markdown code
// fences around it, and clamps the score to [0,1].
func parseVerdict(content string) (verdict, error) {
	var v verdict
	raw := strings.TrimSpace(content)
	if idx := strings.Index(raw, "```json"); idx >= 0 {
		raw = raw[idx+len("```json"):]
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	} else if idx := strings.Index(raw, "```"); idx >= 0 {
		raw = raw[idx+len("```"):]
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	}
	raw = strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("decode verdict: %w", err)
	}
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 1 {
		v.Score = 1
	}
	if v.Critique == "" {
		v.Critique = "evaluation completed"
	}
	return v, nil
}

func (c *Critic) buildMessages(state *workflow.State) []model.Message {
	toolsUsed := make([]string, 0, len(state.ToolInvocations))
	for _, invocation := range state.ToolInvocations {
		toolsUsed = append(toolsUsed, invocation.Tool)
	}
	tools := "none"
	if len(toolsUsed) > 0 {
		tools = strings.Join(toolsUsed, ", ")
	}
	user := fmt.Sprintf(
		"DATASET: %s\nTOOLS USED: %s\n\nUSER'S QUESTION:\n%s\n\nAGENT'S RESPONSE:\n%s\n\n"+
			"Evaluate the quality of this response and provide your assessment in JSON format.",
		state.DatasetRef, tools, state.Request, state.FinalAnswer)
	return []model.Message{
		model.NewSystemMessage(c.systemPrompt()),
		model.NewUserMessage(user),
	}
}

func (c *Critic) systemPrompt() string {
	return fmt.Sprintf(`You are a quality assurance analyst for data-analysis responses.

Evaluate the agent's response to the user's question on these weighted criteria:
1. Accuracy (0.30): correct interpretation of the data, valid statistical conclusions.
2. Completeness (0.30): the question is fully answered, no critical information missing.
3. Clarity (0.20): easy to understand, jargon explained.
4. Actionability (0.20): useful insights the user can act on.

THRESHOLD: %.2f (responses scoring >= %.2f pass).

Respond with a JSON object:
{
    "score": <float 0-1>,
    "critique": "<explanation of the score and issues>",
    "reroute_to": "<agent to retry with, or null if passed>",
    "improvement_suggestions": ["<specific suggestion>"]
}

Be strict but fair. If the score is below the threshold you MUST set reroute_to
and give specific, actionable suggestions; otherwise set reroute_to to null.`,
		c.threshold, c.threshold)
}

var _ workflow.Critic = (*Critic)(nil)
