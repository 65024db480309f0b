//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package planner implements the planning agent: it turns a
// natural-language request plus dataset schema metadata into a tool
// invocation, or interprets a completed tool result into an answer.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dataquest-ai/analysis-engine/dataset"
	"github.com/dataquest-ai/analysis-engine/log"
	"github.com/dataquest-ai/analysis-engine/model"
	"github.com/dataquest-ai/analysis-engine/tool"
	"github.com/dataquest-ai/analysis-engine/workflow"
)

// profileSampleRows caps how many rows are loaded when the planner only
// needs schema metadata, not the data itself.
const profileSampleRows = 100

// defaultTemperature keeps planning precise rather than creative.
const defaultTemperature = 0.3

// Planner plans one analysis turn using an LLM with tool declarations.
type Planner struct {
	model       model.Model
	registry    *tool.Registry
	accessor    dataset.Accessor
	temperature float64
}

// Option configures a Planner.
type Option func(*Planner)

// WithTemperature overrides the completion temperature.
func WithTemperature(temperature float64) Option {
	return func(p *Planner) { p.temperature = temperature }
}

// New creates a Planner backed by the given model, tool registry, and
// data accessor.
func New(m model.Model, registry *tool.Registry, accessor dataset.Accessor, opts ...Option) *Planner {
	p := &Planner{
		model:       m,
		registry:    registry,
		accessor:    accessor,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan implements the workflow.Planner interface. It produces exactly
// one of a pending tool call or a direct final answer. An unparseable
// model reply gets one corrective re-prompt before the turn fails.
func (p *Planner) Plan(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	profile, err := p.loadProfile(ctx, state.DatasetRef)
	if err != nil {
		return nil, fmt.Errorf("load dataset profile: %w", err)
	}

	messages := p.buildPlanMessages(state, profile)
	request := &model.Request{
		Messages: messages,
		Tools:    p.registry.Declarations(),
	}
	request.Temperature = &p.temperature

	response, err := p.model.GenerateContent(ctx, request)
	if err != nil {
		return nil, err
	}

	update, parseErr := p.parsePlanResponse(response)
	if parseErr == nil {
		return update, nil
	}

	// One corrective re-prompt, then the turn fails.
	log.Debugf("plan response unparseable for run %s, re-prompting: %v", state.RunID, parseErr)
	retryRequest := &model.Request{
		Messages: append(messages,
			model.NewAssistantMessage(response.Text()),
			model.NewUserMessage("Your previous reply was not usable: "+parseErr.Error()+
				". Reply with exactly one tool call with valid JSON arguments, or a plain-text answer."),
		),
		Tools: p.registry.Declarations(),
	}
	retryRequest.Temperature = &p.temperature
	response, err = p.model.GenerateContent(ctx, retryRequest)
	if err != nil {
		return nil, err
	}
	update, parseErr = p.parsePlanResponse(response)
	if parseErr != nil {
		return nil, &model.ParseError{What: "plan response", Err: parseErr}
	}
	return update, nil
}

// parsePlanResponse maps a completion to a partial state update: a tool
// call becomes the pending tool, plain text becomes a direct answer.
func (p *Planner) parsePlanResponse(response *model.Response) (*workflow.Update, error) {
	if calls := response.ToolCalls(); len(calls) > 0 {
		call := calls[0]
		name := call.Function.Name
		if _, ok := p.registry.Get(name); !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		args := call.Function.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		if !json.Valid(args) {
			return nil, fmt.Errorf("tool %q arguments are not valid JSON", name)
		}
		return &workflow.Update{
			PendingTool: &workflow.ToolRequest{Name: name, Arguments: args},
			Trace: []string{fmt.Sprintf(
				"planner: requested tool %s with args %s", name, string(args))},
		}, nil
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return nil, fmt.Errorf("empty completion with no tool call")
	}
	return &workflow.Update{
		FinalAnswer:  &text,
		Conversation: []workflow.Turn{{Actor: "assistant", Text: text}},
		Trace:        []string{"planner: answered directly, no tool needed"},
	}, nil
}

// Interpret implements the workflow.Planner interface. The answer is
// produced by deterministic per-tool formatting of the structured
// result, so the same tool is never re-invoked at this phase.
func (p *Planner) Interpret(ctx context.Context, state *workflow.State) (*workflow.Update, error) {
	result := state.ToolResult
	if result == nil {
		return nil, fmt.Errorf("interpret phase entered without a tool result")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer := FormatResult(result)
	return &workflow.Update{
		FinalAnswer:  &answer,
		Conversation: []workflow.Turn{{Actor: "assistant", Text: answer}},
		Trace: []string{fmt.Sprintf(
			"planner: interpreted %s result", result.Tool)},
	}, nil
}

func (p *Planner) loadProfile(ctx context.Context, ref string) (dataset.Profile, error) {
	table, err := p.accessor.LoadSample(ctx, ref, profileSampleRows)
	if err != nil {
		return dataset.Profile{}, err
	}
	return table.Profile(), nil
}

// buildPlanMessages assembles the system prompt, the recent
// conversation, and the user request.
func (p *Planner) buildPlanMessages(state *workflow.State, profile dataset.Profile) []model.Message {
	messages := []model.Message{
		model.NewSystemMessage(p.systemPrompt(state.DatasetRef, profile)),
	}
	for _, turn := range state.RecentConversation() {
		if turn.Actor == "assistant" {
			messages = append(messages, model.NewAssistantMessage(turn.Text))
			continue
		}
		messages = append(messages, model.NewUserMessage(turn.Text))
	}
	return append(messages, model.NewUserMessage(state.Request))
}

func (p *Planner) systemPrompt(ref string, profile dataset.Profile) string {
	var b strings.Builder
	b.WriteString("You are a statistical analysis expert answering questions about a tabular dataset.\n\n")
	b.WriteString("CRITICAL: your primary way to answer is by USING TOOLS. ")
	b.WriteString("Never invent numbers or statistics; any numeric claim must come from a tool result.\n\n")

	rows := profile.Rows
	if profile.Sampled {
		rows = profile.SampledFrom
	}
	fmt.Fprintf(&b, "DATASET:\n- Reference: %s\n- Rows: %d\n", ref, rows)
	fmt.Fprintf(&b, "- Numeric columns: %s\n", strings.Join(profile.NumericColumns(), ", "))
	fmt.Fprintf(&b, "- Categorical columns: %s\n\n", strings.Join(profile.CategoricalColumns(), ", "))

	b.WriteString("AVAILABLE TOOLS:\n")
	for _, declaration := range p.registry.Declarations() {
		fmt.Fprintf(&b, "- %s: %s\n", declaration.Name, declaration.Description)
	}

	b.WriteString("\nRULES:\n")
	b.WriteString("- Call exactly one tool per turn with arguments matching its schema.\n")
	b.WriteString("- Answer directly, without a tool, only for questions the schema alone can answer ")
	b.WriteString("(e.g. which columns exist).\n")
	b.WriteString("- If a previous tool call failed, adjust the arguments instead of repeating it.\n")
	b.WriteString("- If the user or a reviewer gave feedback, the next plan must reflect it.\n")
	return b.String()
}

var _ workflow.Planner = (*Planner)(nil)
