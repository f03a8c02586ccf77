//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

package hub

import (
	"context"
	"maps"
	"time"
)

// SessionContext tracks one execution attempt: the session id plus the
// cancellation token the executor and agent nodes poll. A fresh instance is
// created on every start and resume; instances are replaced, never mutated.
type SessionContext struct {
	SessionID string
	CreatedAt time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newSessionContext(parent context.Context, sessionID string) *SessionContext {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &SessionContext{
		SessionID: sessionID,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context returns the cancellation token for this attempt.
func (s *SessionContext) Context() context.Context {
	return s.ctx
}

// signal cancels the token with the given cause. Only the first cause wins;
// later signals are no-ops.
func (s *SessionContext) signal(cause error) {
	s.cancel(cause)
}

// SessionState is the snapshot captured when a resumable pause is honored:
// the position in the scheduled order, the outputs accumulated so far, and
// the inbound messages queued for the next resume.
//
// State is memory-resident only and lost on process restart; that is a
// documented limitation, not an oversight.
type SessionState struct {
	SessionID        string         `json:"sessionId"`
	CurrentNodeID    string         `json:"currentNodeId"`
	CurrentNodeIndex int            `json:"currentNodeIndex"`
	Outputs          map[string]any `json:"outputs"`
	PendingMessages  []string       `json:"pendingMessages"`
	PausedAt         time.Time      `json:"pausedAt"`
	Reason           string         `json:"reason,omitempty"`
}

// clone returns a copy safe to hand to callers without aliasing the stored
// record.
func (s *SessionState) clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	c.Outputs = maps.Clone(s.Outputs)
	c.PendingMessages = append([]string{}, s.PendingMessages...)
	return &c
}
