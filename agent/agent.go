//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

// Package agent defines the provider boundary behind agent-backed nodes.
//
// The coordinator core never talks to a model service directly; agent nodes
// delegate to a Provider and treat its output as opaque. Implementations
// live in subpackages (e.g. agent/openai).
package agent

import (
	"context"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation with the provider. Resuming a prior
// conversation is expressed by appending new messages to the prior context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Request is the input to a provider query.
type Request struct {
	// Messages is the full conversation so far, oldest first.
	Messages []Message `json:"messages"`

	// OutputSchema optionally constrains the reply to a JSON schema. When
	// set, the provider must return conforming output or fail with a typed
	// Error.
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

// Response is one streamed chunk of provider output.
//
// Providers use a dual-layer error strategy: system-level failures that
// prevent communication are returned from Query itself, while service-level
// failures arrive through the stream in the Error field.
type Response struct {
	// Content is the text delta for this chunk.
	Content string `json:"content"`

	// Done marks the final chunk of the stream.
	Done bool `json:"done"`

	// Error carries a service-level failure, nil otherwise.
	Error *Error `json:"error,omitempty"`
}

// Error is a typed provider failure. Retryable tells the caller whether the
// same query may succeed if issued again.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s (retryable=%t)", e.Code, e.Message, e.Retryable)
}

// Provider is the boundary to a long-running AI agent service.
//
// Query streams output chunks on the returned channel and closes it when the
// stream ends. Implementations must honor ctx cancellation: once ctx is done
// they stop emitting and close the channel promptly. A query for an agent
// node may run for minutes, so cancellation is how a cooperative pause
// interrupts it mid-flight.
type Provider interface {
	Query(ctx context.Context, req *Request) (<-chan *Response, error)

	// Info returns basic information about the provider.
	Info() Info
}

// Info contains basic information about a Provider.
type Info struct {
	Name string
}
