//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package model

import "time"

// Choice represents one completion choice returned by the model.
type Choice struct {
	// Index is the index of the choice.
	Index int `json:"index"`

	// Message is the generated message.
	Message Message `json:"message"`

	// FinishReason is the reason the choice was finished.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the response from the model.
type Response struct {
	// ID is the provider-assigned identifier of the completion.
	ID string `json:"id,omitempty"`

	// Model is the name of the model that produced the completion.
	Model string `json:"model,omitempty"`

	// Created is the unix timestamp of the completion.
	Created int64 `json:"created,omitempty"`

	// Choices are the completion choices. At least one on success.
	Choices []Choice `json:"choices,omitempty"`

	// Usage contains token usage information when reported.
	Usage *Usage `json:"usage,omitempty"`

	// Timestamp is when the response was received locally.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ToolCalls returns the tool calls of the first choice, if any.
func (r *Response) ToolCalls() []ToolCall {
	if r == nil || len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message.ToolCalls
}

// Text returns the text content of the first choice.
func (r *Response) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
