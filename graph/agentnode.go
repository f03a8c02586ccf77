//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"strings"

	"github.com/Open-Harness/open-harness-sub005/agent"
)

// PromptFunc builds the conversation an agent node sends to the provider,
// typically from outputs of upstream nodes.
type PromptFunc func(*Input) []agent.Message

// AgentNodeOption configures an agent node.
type AgentNodeOption func(*agentNodeConfig)

type agentNodeConfig struct {
	name         string
	description  string
	outputSchema map[string]any
}

// WithAgentNodeName sets a display name for the node.
func WithAgentNodeName(name string) AgentNodeOption {
	return func(c *agentNodeConfig) {
		c.name = name
	}
}

// WithAgentNodeDescription sets a description for the node.
func WithAgentNodeDescription(description string) AgentNodeOption {
	return func(c *agentNodeConfig) {
		c.description = description
	}
}

// WithOutputSchema constrains the provider reply to a JSON schema.
func WithOutputSchema(schema map[string]any) AgentNodeOption {
	return func(c *agentNodeConfig) {
		c.outputSchema = schema
	}
}

// NewAgentNode builds a node that delegates to the agent provider boundary.
//
// Queued messages delivered on resume are appended to the prompt as user
// turns, so a multi-turn conversation continues where it left off. The ctx
// handed to the run is passed straight through to the provider, which is how
// a pause interrupts a long-running query mid-flight.
func NewAgentNode(id string, provider agent.Provider, prompt PromptFunc, dependsOn []string, opts ...AgentNodeOption) *Node {
	cfg := agentNodeConfig{name: id}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Node{
		ID:          id,
		Name:        cfg.name,
		Description: cfg.description,
		Type:        NodeTypeAgent,
		DependsOn:   dependsOn,
		Run: func(ctx context.Context, in *Input) (any, error) {
			messages := prompt(in)
			for _, msg := range in.Messages {
				messages = append(messages, agent.NewUserMessage(msg))
			}
			stream, err := provider.Query(ctx, &agent.Request{
				Messages:     messages,
				OutputSchema: cfg.outputSchema,
			})
			if err != nil {
				return nil, err
			}
			var sb strings.Builder
			for rsp := range stream {
				if rsp.Error != nil {
					return nil, rsp.Error
				}
				sb.WriteString(rsp.Content)
				select {
				case <-ctx.Done():
					return nil, context.Cause(ctx)
				default:
				}
			}
			if err := ctx.Err(); err != nil {
				return nil, context.Cause(ctx)
			}
			return sb.String(), nil
		},
	}
}
