//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

// Package event defines the immutable facts emitted while a flow executes.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event names are colon-delimited and hierarchical so that channel
// subscriptions can match whole families with a glob pattern (`flow:*`).
const (
	FlowStarted  = "flow:started"
	FlowPaused   = "flow:paused"
	FlowResumed  = "flow:resumed"
	FlowComplete = "flow:complete"
	FlowAborted  = "flow:aborted"

	NodeStart    = "node:start"
	NodeComplete = "node:complete"
	NodeError    = "node:error"
)

// Event is an immutable, named, timestamped fact with an opaque payload.
// Events are created at the moment the fact occurs and never mutated.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// Name is the hierarchical event name, e.g. "flow:paused".
	Name string `json:"name"`

	// Payload carries event-specific data. It is opaque to the registry.
	Payload any `json:"payload,omitempty"`

	// Timestamp is when the fact occurred.
	Timestamp time.Time `json:"timestamp"`

	// CausedBy optionally references the ID of the event that caused this one.
	CausedBy string `json:"causedBy,omitempty"`
}

// Option configures an Event at construction time.
type Option func(*Event)

// WithPayload sets the payload for the event.
func WithPayload(payload any) Option {
	return func(e *Event) {
		e.Payload = payload
	}
}

// WithCausedBy records the causal parent of the event.
func WithCausedBy(parentID string) Option {
	return func(e *Event) {
		e.CausedBy = parentID
	}
}

// New creates an Event with a generated ID and the current timestamp.
func New(name string, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.New().String(),
		Name:      name,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FlowPausedPayload is the payload of a "flow:paused" event.
type FlowPausedPayload struct {
	SessionID string `json:"sessionId"`
	NodeID    string `json:"nodeId"`
	Reason    string `json:"reason,omitempty"`
}

// FlowResumedPayload is the payload of a "flow:resumed" event.
type FlowResumedPayload struct {
	SessionID string `json:"sessionId"`
	NodeID    string `json:"nodeId"`
	// InjectedMessages is the number of queued messages delivered on resume.
	InjectedMessages int `json:"injectedMessages"`
}

// FlowPayload is the payload of flow lifecycle events other than pause/resume.
type FlowPayload struct {
	SessionID string `json:"sessionId"`
}

// NodePayload is the payload of per-node start and complete events.
type NodePayload struct {
	SessionID string `json:"sessionId"`
	NodeID    string `json:"nodeId"`
}

// NodeErrorPayload is the payload of a "node:error" event.
type NodeErrorPayload struct {
	SessionID string `json:"sessionId"`
	NodeID    string `json:"nodeId"`
	Error     string `json:"error"`
}
