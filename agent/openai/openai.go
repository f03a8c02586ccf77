//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an agent provider backed by the OpenAI
// chat-completions API, or any OpenAI-compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/Open-Harness/open-harness-sub005/agent"
	"github.com/Open-Harness/open-harness-sub005/log"
)

const defaultChanBufferSize = 256

// Provider implements agent.Provider over the OpenAI streaming API.
type Provider struct {
	name       string
	model      shared.ChatModel
	client     openai.Client
	clientOpts []openaiopt.RequestOption
}

// Option configures the provider.
type Option func(*Provider)

// WithModel sets the model name, e.g. "gpt-4o".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = shared.ChatModel(model)
	}
}

// WithAPIKey sets the API key. Without it the SDK falls back to the
// OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, openaiopt.WithAPIKey(key))
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, openaiopt.WithBaseURL(url))
	}
}

// New creates a provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:  "openai",
		model: openai.ChatModelGPT4o,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(p.clientOpts...)
	return p
}

// Info returns basic information about the provider.
func (p *Provider) Info() agent.Info {
	return agent.Info{Name: p.name}
}

// Query streams a chat completion. The ctx carries the execution attempt's
// cancellation token: once it is signaled the stream is torn down and the
// channel closed without a trailing error, leaving the caller's token as the
// source of truth for why the query stopped.
func (p *Provider) Query(ctx context.Context, req *agent.Request) (<-chan *agent.Response, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("request has no messages")
	}

	chatReq := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: convertMessages(req.Messages),
	}
	if req.OutputSchema != nil {
		chatReq.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_output",
					Schema: req.OutputSchema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	out := make(chan *agent.Response, defaultChanBufferSize)
	go func() {
		defer close(out)
		p.stream(ctx, chatReq, out)
	}()
	return out, nil
}

func (p *Provider) stream(ctx context.Context, chatReq openai.ChatCompletionNewParams, out chan<- *agent.Response) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, chatReq)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case out <- &agent.Response{Content: chunk.Choices[0].Delta.Content}:
		case <-ctx.Done():
			return
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warnf("openai: stream failed: %v", err)
		select {
		case out <- &agent.Response{Done: true, Error: convertError(err)}:
		case <-ctx.Done():
		}
		return
	}
	select {
	case out <- &agent.Response{Done: true}:
	case <-ctx.Done():
	}
}

func convertMessages(messages []agent.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case agent.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

// convertError maps SDK failures onto the typed provider error. Rate limits
// and server-side failures are marked retryable.
func convertError(err error) *agent.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &agent.Error{
			Code:      fmt.Sprintf("http_%d", apiErr.StatusCode),
			Message:   apiErr.Message,
			Retryable: apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError,
		}
	}
	return &agent.Error{
		Code:      "stream_error",
		Message:   err.Error(),
		Retryable: true,
	}
}
