//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package openai provides an OpenAI-compatible model implementation.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dataquest-ai/analysis-engine/log"
	"github.com/dataquest-ai/analysis-engine/model"
	"github.com/dataquest-ai/analysis-engine/tool"
)

// Model implements the model.Model interface against the OpenAI chat
// completions API or any compatible endpoint.
type Model struct {
	client openai.Client
	name   string
	retry  model.RetryPolicy
}

// options contains configuration options for creating a Model.
type options struct {
	// API key for the OpenAI client.
	APIKey string
	// Base URL for OpenAI-compatible APIs. Optional.
	BaseURL string
	// Per-request HTTP timeout.
	Timeout time.Duration
	// Retry policy for transient API failures.
	RetryPolicy *model.RetryPolicy // nil means DefaultRetryPolicy
	// Extra options passed through to the OpenAI client.
	OpenAIOptions []openaiopt.RequestOption
}

// Option is a function that configures an OpenAI model.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) { o.APIKey = key }
}

// WithBaseURL sets the base URL for OpenAI-compatible APIs.
func WithBaseURL(url string) Option {
	return func(o *options) { o.BaseURL = url }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.Timeout = timeout }
}

// WithRetryPolicy sets the retry policy for transient API failures.
func WithRetryPolicy(policy model.RetryPolicy) Option {
	return func(o *options) { o.RetryPolicy = &policy }
}

// WithOpenAIOptions passes extra request options to the underlying client.
func WithOpenAIOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.OpenAIOptions = append(o.OpenAIOptions, opts...) }
}

// New creates a new OpenAI-compatible model with the given name.
func New(name string, opts ...Option) *Model {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	if o.Timeout > 0 {
		clientOpts = append(clientOpts, openaiopt.WithHTTPClient(&http.Client{Timeout: o.Timeout}))
	}
	clientOpts = append(clientOpts, o.OpenAIOptions...)

	retry := model.DefaultRetryPolicy()
	if o.RetryPolicy != nil {
		retry = *o.RetryPolicy
	}

	return &Model{
		client: openai.NewClient(clientOpts...),
		name:   name,
		retry:  retry,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements the model.Model interface. Transient API
// failures are retried per the configured policy; exhausted retries are
// reported as a model.ServiceError.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (*model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
		Tools:    convertTools(request.Tools),
	}
	// MaxTokens is deprecated and not compatible with o-series models.
	// Use MaxCompletionTokens instead.
	if request.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		chatRequest.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		// Use the first stop string for simplicity.
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfString: openai.String(request.Stop[0]),
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= m.retry.MaxAttempts; attempt++ {
		attempts = attempt
		chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest)
		if err == nil {
			return convertResponse(chatCompletion), nil
		}
		lastErr = err
		if attempt == m.retry.MaxAttempts || !m.retry.ShouldRetry(err) {
			break
		}
		delay := m.retry.NextDelay(attempt)
		log.Warnf("model %s attempt %d failed, retrying in %v: %v", m.name, attempt, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &model.ServiceError{Model: m.name, Attempts: attempts, Err: ctx.Err()}
		}
	}
	return nil, &model.ServiceError{Model: m.name, Attempts: attempts, Err: lastErr}
}

// convertMessages converts our Message format to OpenAI's format.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		case model.RoleAssistant:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		default:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		}
	}
	return result
}

// convertTools maps tool declarations to OpenAI's function tool format.
func convertTools(declarations []*tool.Declaration) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, declaration := range declarations {
		// Round-trip the schema through JSON to map it to OpenAI's
		// expected parameter format.
		schemaBytes, err := json.Marshal(declaration.InputSchema)
		if err != nil {
			log.Errorf("failed to marshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("failed to unmarshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        declaration.Name,
				Description: openai.String(declaration.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}

func convertResponse(chatCompletion *openai.ChatCompletion) *model.Response {
	response := &model.Response{
		ID:        chatCompletion.ID,
		Created:   chatCompletion.Created,
		Model:     chatCompletion.Model,
		Timestamp: time.Now(),
	}
	response.Choices = make([]model.Choice, len(chatCompletion.Choices))
	for i, choice := range chatCompletion.Choices {
		response.Choices[i] = model.Choice{
			Index: int(choice.Index),
			Message: model.Message{
				Role:    model.RoleAssistant,
				Content: choice.Message.Content,
			},
		}
		if choice.FinishReason != "" {
			finishReason := choice.FinishReason
			response.Choices[i].FinishReason = &finishReason
		}
		response.Choices[i].Message.ToolCalls = make([]model.ToolCall, len(choice.Message.ToolCalls))
		for j, toolCall := range choice.Message.ToolCalls {
			synthesizedID := toolCall.ID
			if synthesizedID == "" {
				// Synthesize an ID for providers that omit it.
				synthesizedID = fmt.Sprintf("auto_call_%d", j)
			}
			response.Choices[i].Message.ToolCalls[j] = model.ToolCall{
				ID:   synthesizedID,
				Type: string(toolCall.Type),
				Function: model.FunctionCall{
					Name:      toolCall.Function.Name,
					Arguments: []byte(toolCall.Function.Arguments),
				},
			}
		}
	}
	if chatCompletion.Usage.PromptTokens > 0 || chatCompletion.Usage.CompletionTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(chatCompletion.Usage.PromptTokens),
			CompletionTokens: int(chatCompletion.Usage.CompletionTokens),
			TotalTokens:      int(chatCompletion.Usage.TotalTokens),
		}
	}
	return response
}

var _ model.Model = (*Model)(nil)
