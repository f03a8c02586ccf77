//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Open-Harness/open-harness-sub005/event"
	"github.com/Open-Harness/open-harness-sub005/telemetry"
)

// Emitter publishes execution events to observers. *channel.Registry
// satisfies it.
type Emitter interface {
	Publish(*event.Event)
}

// Snapshot records where execution stopped when a pause was honored: the
// node that did not complete, its index in the scheduled order, and the
// outputs accumulated before it.
type Snapshot struct {
	NodeID  string
	Index   int
	Outputs map[string]any
}

// CaptureFunc receives the snapshot taken when a pause is honored. The
// executor never stores snapshots itself; the coordinator owns that.
type CaptureFunc func(Snapshot)

// Invocation describes one executor entry: a scheduled order, the position
// to start at, outputs accumulated before that position, and queued inbound
// messages to deliver to the first node run.
type Invocation struct {
	SessionID  string
	Nodes      []*Node
	StartIndex int
	Outputs    map[string]any
	Messages   []string
}

// Result is the outcome of an executor run. Exactly one of three shapes:
// Terminated true (order exhausted), PausedAt set (stopped on a resumable
// pause), or neither (the run failed; the error carries the cause). Outputs
// always holds everything accumulated up to the stop point.
type Result struct {
	Outputs     map[string]any
	Terminated  bool
	PausedAt    string
	PausedIndex int
}

// Paused reports whether the run stopped on a resumable pause.
func (r *Result) Paused() bool {
	return r.PausedAt != ""
}

// Executor walks a scheduled node order under cooperative cancellation.
//
// The cancellation token is checked at two points per node: before dispatch
// and, via the next loop iteration, after completion. Agent nodes
// additionally receive the token through ctx so a pause can interrupt a
// long-running provider call mid-flight. This bounds worst-case pause
// latency to one deterministic-node duration, or to however promptly the
// provider honors cancellation.
type Executor struct {
	emitter Emitter
	capture CaptureFunc
}

// Option configures an Executor.
type Option func(*Executor)

// WithEmitter sets the event emitter. Without one, events are skipped.
func WithEmitter(emitter Emitter) Option {
	return func(e *Executor) {
		e.emitter = emitter
	}
}

// WithCapture sets the callback invoked with the snapshot when a pause is
// honored.
func WithCapture(capture CaptureFunc) Option {
	return func(e *Executor) {
		e.capture = capture
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the invocation's nodes in order, starting at StartIndex.
//
// On a pause it invokes the capture callback and returns a paused Result
// with a nil error. On a terminal abort it returns the cancellation cause.
// On a node failure it stops, leaves Outputs as accumulated so far, and
// returns a *NodeError; it never retries.
func (e *Executor) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	if inv == nil {
		return nil, errors.New("invocation is nil")
	}
	if inv.StartIndex < 0 || inv.StartIndex > len(inv.Nodes) {
		return nil, fmt.Errorf("start index %d out of range [0, %d]", inv.StartIndex, len(inv.Nodes))
	}
	outputs := cloneOutputs(inv.Outputs)
	messages := inv.Messages
	for i := inv.StartIndex; i < len(inv.Nodes); i++ {
		node := inv.Nodes[i]
		// A token already signaled stops here: this node becomes the pause
		// point and is not run.
		if ctx.Err() != nil {
			return e.stop(ctx, node, i, outputs)
		}

		nodeCtx, span := telemetry.Tracer.Start(ctx, fmt.Sprintf("run_node %s", node.ID))
		span.SetAttributes(
			attribute.String("harness.node_id", node.ID),
			attribute.String("harness.node_type", string(node.Type)),
			attribute.String("harness.session_id", inv.SessionID),
		)

		e.publish(event.New(event.NodeStart,
			event.WithPayload(event.NodePayload{SessionID: inv.SessionID, NodeID: node.ID})))

		out, err := node.Run(nodeCtx, &Input{
			SessionID: inv.SessionID,
			Outputs:   cloneOutputs(outputs),
			Messages:  messages,
		})
		if err != nil {
			span.SetAttributes(attribute.String("harness.error", err.Error()))
			span.End()
			// A run interrupted by the token is a pause or abort, not a node
			// failure; the node will re-run on resume.
			if ctx.Err() != nil {
				return e.stop(ctx, node, i, outputs)
			}
			e.publish(event.New(event.NodeError,
				event.WithPayload(event.NodeErrorPayload{
					SessionID: inv.SessionID,
					NodeID:    node.ID,
					Error:     err.Error(),
				})))
			return &Result{Outputs: outputs}, &NodeError{NodeID: node.ID, Err: err}
		}
		span.End()

		// The queued messages are delivered exactly once.
		messages = nil
		outputs[node.ID] = out
		e.publish(event.New(event.NodeComplete,
			event.WithPayload(event.NodePayload{SessionID: inv.SessionID, NodeID: node.ID})))
	}
	return &Result{Outputs: outputs, Terminated: true}, nil
}

// stop handles a signaled token: a pause captures a snapshot at the current
// node, an abort propagates the cancellation cause.
func (e *Executor) stop(ctx context.Context, node *Node, index int, outputs map[string]any) (*Result, error) {
	var pause *PauseSignal
	if errors.As(context.Cause(ctx), &pause) {
		if e.capture != nil {
			e.capture(Snapshot{NodeID: node.ID, Index: index, Outputs: cloneOutputs(outputs)})
		}
		return &Result{Outputs: outputs, PausedAt: node.ID, PausedIndex: index}, nil
	}
	return &Result{Outputs: outputs}, context.Cause(ctx)
}

func (e *Executor) publish(evt *event.Event) {
	if e.emitter != nil {
		e.emitter.Publish(evt)
	}
}
