//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

// Package hub provides the execution coordinator: a state machine that
// schedules a node graph, drives the executor, tracks pause/resume session
// state and fans execution events out through the channel registry.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Open-Harness/open-harness-sub005/channel"
	"github.com/Open-Harness/open-harness-sub005/event"
	"github.com/Open-Harness/open-harness-sub005/graph"
	"github.com/Open-Harness/open-harness-sub005/log"
)

// Status is the coordinator state. Exactly one value at a time.
type Status string

// Coordinator states.
const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusAborted  Status = "aborted"
)

// errAborted is the cancellation cause of a non-resumable pause.
var errAborted = errors.New("execution aborted")

// Hub is the top-level coordinator. It exclusively owns the status, the live
// session context and the paused-session table; the executor only reads the
// session's cancellation token and reports back through callbacks.
type Hub struct {
	mu       sync.Mutex
	status   Status
	registry *channel.Registry
	executor *graph.Executor

	// sess is the live execution attempt, nil unless status is running.
	sess *SessionContext
	// ordered is the scheduled order of the active graph, kept across
	// pauses so resume can re-enter at the stored index.
	ordered []*graph.Node
	// paused maps session id to its captured snapshot. A session is either
	// running (no entry) or paused (exactly one entry), never both.
	paused map[string]*SessionState

	pauseReason string

	done   chan struct{}
	result *graph.Result
	runErr error
}

// Option configures a Hub.
type Option func(*Hub)

// WithRegistry replaces the default channel registry.
func WithRegistry(registry *channel.Registry) Option {
	return func(h *Hub) {
		h.registry = registry
	}
}

// New creates an idle hub.
func New(opts ...Option) (*Hub, error) {
	h := &Hub{
		status: StatusIdle,
		paused: make(map[string]*SessionState),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		registry, err := channel.New()
		if err != nil {
			return nil, err
		}
		h.registry = registry
	}
	h.executor = graph.NewExecutor(
		graph.WithEmitter(h.registry),
		graph.WithCapture(h.capture),
	)
	return h, nil
}

// Status returns the current coordinator state.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// PausedSession returns a copy of the stored snapshot for the session, for
// inspection without mutating state.
func (h *Hub) PausedSession(sessionID string) (*SessionState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.paused[sessionID]
	return state.clone(), ok
}

// RegisterChannel adds a named subscription routing glob patterns to
// handlers. It may be called at any time regardless of status; delivery to a
// channel never affects the coordinator state.
func (h *Hub) RegisterChannel(name string, patterns map[string]channel.Handler) (func(), error) {
	return h.registry.Register(name, patterns)
}

// Registry exposes the event registry for read-only consumers such as the
// debug server.
func (h *Hub) Registry() *channel.Registry {
	return h.registry
}

// Start schedules the graph and begins executing it, returning the new
// session id. Scheduling errors (including *graph.CycleError) are returned
// synchronously and leave the status untouched. The optional input message
// is delivered to the first node.
func (h *Hub) Start(ctx context.Context, g *graph.Graph, input string) (string, error) {
	ordered, err := graph.Schedule(g)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == StatusRunning || h.status == StatusPaused {
		return "", ErrExecutionActive
	}

	sessionID := uuid.New().String()
	sess := newSessionContext(ctx, sessionID)
	h.sess = sess
	h.ordered = ordered
	h.done = make(chan struct{})
	h.result = nil
	h.runErr = nil
	h.pauseReason = ""

	var messages []string
	if input != "" {
		messages = []string{input}
	}

	h.registry.Publish(event.New(event.FlowStarted,
		event.WithPayload(event.FlowPayload{SessionID: sessionID})))
	h.status = StatusRunning
	log.Debugf("hub: session %s started with %d nodes", sessionID, len(ordered))

	go h.run(sess, &graph.Invocation{
		SessionID: sessionID,
		Nodes:     ordered,
		Messages:  messages,
	})
	return sessionID, nil
}

// PauseOption configures a pause request.
type PauseOption func(*pauseOptions)

type pauseOptions struct {
	resumable bool
	reason    string
}

// WithResumable marks the pause as resumable: execution state is captured
// for a later Resume instead of being discarded.
func WithResumable() PauseOption {
	return func(o *pauseOptions) {
		o.resumable = true
	}
}

// WithPauseReason attaches a human-readable reason to the pause.
func WithPauseReason(reason string) PauseOption {
	return func(o *pauseOptions) {
		o.reason = reason
	}
}

// Pause requests a cooperative stop of the running execution and returns the
// session id the caller may later resume. Without WithResumable the request
// is a terminal abort that discards in-flight progress.
//
// Cancellation is cooperative, never preemptive: the in-flight node observes
// the signal at its next check point, so there is no fixed latency bound.
// Pausing an already paused or finished execution is a no-op.
func (h *Hub) Pause(opts ...PauseOption) (string, error) {
	var o pauseOptions
	for _, opt := range opts {
		opt(&o)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != StatusRunning || h.sess == nil {
		return "", nil
	}
	sessionID := h.sess.SessionID
	if o.resumable {
		h.pauseReason = o.reason
		h.sess.signal(&graph.PauseSignal{Reason: o.reason})
		return sessionID, nil
	}
	h.sess.signal(errAborted)
	return sessionID, nil
}

// Resume restores a paused session and re-enters the executor at the stored
// position. The message is mandatory; it is appended to the pending queue
// and the whole queue is delivered to the node that resumes.
func (h *Hub) Resume(ctx context.Context, sessionID, message string) error {
	if message == "" {
		return ErrMessageRequired
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.paused[sessionID]
	if !ok {
		if h.sess != nil && h.sess.SessionID == sessionID && h.status == StatusRunning {
			return &SessionAlreadyRunningError{SessionID: sessionID}
		}
		return &SessionNotFoundError{SessionID: sessionID}
	}
	if h.status == StatusRunning {
		return ErrExecutionActive
	}

	state.PendingMessages = append(state.PendingMessages, message)
	// The session is running again; the snapshot leaves the table so the
	// running/paused invariant holds. A later pause stores a fresh one.
	delete(h.paused, sessionID)

	sess := newSessionContext(ctx, sessionID)
	h.sess = sess
	h.pauseReason = ""

	h.registry.Publish(event.New(event.FlowResumed,
		event.WithPayload(event.FlowResumedPayload{
			SessionID:        sessionID,
			NodeID:           state.CurrentNodeID,
			InjectedMessages: len(state.PendingMessages),
		})))
	h.status = StatusRunning
	log.Debugf("hub: session %s resumed at node %s", sessionID, state.CurrentNodeID)

	go h.run(sess, &graph.Invocation{
		SessionID:  sessionID,
		Nodes:      h.ordered,
		StartIndex: state.CurrentNodeIndex,
		Outputs:    state.Outputs,
		Messages:   state.PendingMessages,
	})
	return nil
}

// Enqueue appends a message to a paused session's queue without resuming
// it. The whole queue, in order, is delivered atomically on the next Resume.
func (h *Hub) Enqueue(sessionID, message string) error {
	if message == "" {
		return ErrMessageRequired
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.paused[sessionID]
	if !ok {
		return &SessionNotFoundError{SessionID: sessionID}
	}
	state.PendingMessages = append(state.PendingMessages, message)
	return nil
}

// Wait blocks until the active execution reaches a terminal state (complete
// or aborted) and returns its result. A paused execution keeps Wait blocked
// until it is resumed and finishes.
func (h *Hub) Wait(ctx context.Context) (*graph.Result, error) {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return nil, errors.New("no execution started")
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.runErr
}

// Close flushes pending event deliveries and releases the registry worker.
func (h *Hub) Close() {
	h.registry.Close()
}

// capture stores the snapshot reported by the executor when a pause is
// honored. The paused event is published before the status flips so no
// status read can observe "paused" ahead of the event.
func (h *Hub) capture(snap graph.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess := h.sess
	if sess == nil || h.status != StatusRunning {
		return
	}
	state := &SessionState{
		SessionID:        sess.SessionID,
		CurrentNodeID:    snap.NodeID,
		CurrentNodeIndex: snap.Index,
		Outputs:          snap.Outputs,
		PausedAt:         time.Now(),
		Reason:           h.pauseReason,
	}
	h.paused[sess.SessionID] = state
	h.registry.Publish(event.New(event.FlowPaused,
		event.WithPayload(event.FlowPausedPayload{
			SessionID: sess.SessionID,
			NodeID:    snap.NodeID,
			Reason:    h.pauseReason,
		})))
	h.status = StatusPaused
	h.sess = nil
	log.Debugf("hub: session %s paused at node %s", sess.SessionID, snap.NodeID)
}

// run drives one executor entry on its own goroutine and applies the
// terminal transition when it returns.
func (h *Hub) run(sess *SessionContext, inv *graph.Invocation) {
	result, err := h.executor.Run(sess.Context(), inv)

	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case err != nil:
		// Node failure or terminal abort: discard progress, not resumable.
		h.result = result
		h.runErr = err
		delete(h.paused, sess.SessionID)
		h.registry.Publish(event.New(event.FlowAborted,
			event.WithPayload(event.FlowPayload{SessionID: sess.SessionID})))
		h.status = StatusAborted
		h.sess = nil
		log.Debugf("hub: session %s aborted: %v", sess.SessionID, err)
		close(h.done)
	case result.Terminated:
		h.result = result
		delete(h.paused, sess.SessionID)
		h.registry.Publish(event.New(event.FlowComplete,
			event.WithPayload(event.FlowPayload{SessionID: sess.SessionID})))
		h.status = StatusComplete
		h.sess = nil
		log.Debugf("hub: session %s complete", sess.SessionID)
		close(h.done)
	default:
		// Paused: capture already stored the snapshot, published the event
		// and flipped the status.
	}
}
