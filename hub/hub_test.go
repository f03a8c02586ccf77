//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Harness/open-harness-sub005/channel"
	"github.com/Open-Harness/open-harness-sub005/event"
	"github.com/Open-Harness/open-harness-sub005/graph"
)

const (
	waitTimeout = 5 * time.Second
	pollTick    = 5 * time.Millisecond
)

func funcNode(id string, deps ...string) *graph.Node {
	return &graph.Node{
		ID:        id,
		Type:      graph.NodeTypeFunction,
		DependsOn: deps,
		Run: func(ctx context.Context, in *graph.Input) (any, error) {
			return id + "-out", nil
		},
	}
}

func mustGraph(t *testing.T, nodes ...*graph.Node) *graph.Graph {
	t.Helper()
	g, err := graph.New(nodes...)
	require.NoError(t, err)
	return g
}

// eventLog subscribes to every flow and node event on a hub.
type eventLog struct {
	mu     sync.Mutex
	events []*event.Event
}

func newEventLog(t *testing.T, h *Hub) *eventLog {
	t.Helper()
	l := &eventLog{}
	record := func(e *event.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, e)
	}
	_, err := h.RegisterChannel("test-log", map[string]channel.Handler{
		"flow:*": record,
		"node:*": record,
	})
	require.NoError(t, err)
	return l
}

func (l *eventLog) names(h *Hub) []string {
	h.Registry().Flush()
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Name
	}
	return out
}

func (l *eventLog) count(h *Hub, name string) int {
	n := 0
	for _, got := range l.names(h) {
		if got == name {
			n++
		}
	}
	return n
}

func waitStatus(t *testing.T, h *Hub, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.Status() == want
	}, waitTimeout, pollTick, "status never reached %s", want)
}

func TestStartToComplete(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()
	logged := newEventLog(t, h)

	assert.Equal(t, StatusIdle, h.Status())

	g := mustGraph(t, funcNode("a"), funcNode("b", "a"), funcNode("c", "b"))
	sessionID, err := h.Start(context.Background(), g, "")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	result, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, result.Terminated)
	assert.Equal(t, map[string]any{"a": "a-out", "b": "b-out", "c": "c-out"}, result.Outputs)
	assert.Equal(t, StatusComplete, h.Status())

	assert.Equal(t, []string{
		event.FlowStarted,
		event.NodeStart, event.NodeComplete,
		event.NodeStart, event.NodeComplete,
		event.NodeStart, event.NodeComplete,
		event.FlowComplete,
	}, logged.names(h))
}

func TestStartCycleLeavesStatusUntouched(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	g := mustGraph(t, funcNode("X", "Y"), funcNode("Y", "X"))
	_, err = h.Start(context.Background(), g, "")
	var cycle *graph.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"X", "Y"}, cycle.NodeIDs)
	assert.Equal(t, StatusIdle, h.Status())
}

func TestStartWhileActive(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	release := make(chan struct{})
	g := mustGraph(t, &graph.Node{ID: "slow", Run: func(ctx context.Context, in *graph.Input) (any, error) {
		<-release
		return "done", nil
	}})
	_, err = h.Start(context.Background(), g, "")
	require.NoError(t, err)

	_, err = h.Start(context.Background(), mustGraph(t, funcNode("a")), "")
	assert.ErrorIs(t, err, ErrExecutionActive)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = h.Wait(ctx)
	require.NoError(t, err)
}

// blockingNode signals when its run starts and then parks on the
// cancellation token, so tests can pause or abort at a known point. A
// second run completes normally and records the messages it received.
type blockingNode struct {
	started  chan struct{}
	mu       sync.Mutex
	attempts int
	messages []string
	outputs  map[string]any
}

func newBlockingNode() *blockingNode {
	return &blockingNode{started: make(chan struct{})}
}

func (b *blockingNode) node(id string, deps ...string) *graph.Node {
	return &graph.Node{
		ID:        id,
		Type:      graph.NodeTypeAgent,
		DependsOn: deps,
		Run: func(ctx context.Context, in *graph.Input) (any, error) {
			b.mu.Lock()
			b.attempts++
			first := b.attempts == 1
			b.messages = in.Messages
			b.outputs = in.Outputs
			b.mu.Unlock()
			if first {
				close(b.started)
				<-ctx.Done()
				return nil, context.Cause(ctx)
			}
			return id + "-out", nil
		},
	}
}

func (b *blockingNode) lastMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.messages...)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()
	logged := newEventLog(t, h)

	var pausedPayload *event.FlowPausedPayload
	var payloadMu sync.Mutex
	_, err = h.RegisterChannel("pause-watch", map[string]channel.Handler{
		event.FlowPaused: func(e *event.Event) {
			payload := e.Payload.(event.FlowPausedPayload)
			payloadMu.Lock()
			pausedPayload = &payload
			payloadMu.Unlock()
		},
	})
	require.NoError(t, err)

	blocking := newBlockingNode()
	g := mustGraph(t, funcNode("A"), blocking.node("B", "A"), funcNode("C", "B"))

	sessionID, err := h.Start(context.Background(), g, "")
	require.NoError(t, err)

	<-blocking.started
	pausedID, err := h.Pause(WithResumable(), WithPauseReason("operator check"))
	require.NoError(t, err)
	assert.Equal(t, sessionID, pausedID)

	waitStatus(t, h, StatusPaused)

	h.Registry().Flush()
	payloadMu.Lock()
	require.NotNil(t, pausedPayload)
	assert.Equal(t, sessionID, pausedPayload.SessionID)
	assert.Equal(t, "B", pausedPayload.NodeID)
	assert.Equal(t, "operator check", pausedPayload.Reason)
	payloadMu.Unlock()

	state, ok := h.PausedSession(sessionID)
	require.True(t, ok)
	assert.Equal(t, sessionID, state.SessionID)
	assert.Equal(t, "B", state.CurrentNodeID)
	assert.Equal(t, 1, state.CurrentNodeIndex)
	assert.Equal(t, map[string]any{"A": "A-out"}, state.Outputs)
	assert.Equal(t, "operator check", state.Reason)
	assert.False(t, state.PausedAt.IsZero())

	require.NoError(t, h.Resume(context.Background(), sessionID, "continue"))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	result, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, result.Terminated)
	assert.Equal(t, map[string]any{"A": "A-out", "B": "B-out", "C": "C-out"}, result.Outputs)
	assert.Equal(t, StatusComplete, h.Status())

	// The injected message was visible to the node that resumed.
	assert.Equal(t, []string{"continue"}, blocking.lastMessages())

	// The snapshot is gone once the session completes.
	_, ok = h.PausedSession(sessionID)
	assert.False(t, ok)

	names := logged.names(h)
	assert.Contains(t, names, event.FlowPaused)
	assert.Contains(t, names, event.FlowResumed)
	assert.Equal(t, names[len(names)-1], event.FlowComplete)
}

func TestResumedEventCarriesMessageCount(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	var resumed *event.FlowResumedPayload
	var mu sync.Mutex
	_, err = h.RegisterChannel("resume-watch", map[string]channel.Handler{
		event.FlowResumed: func(e *event.Event) {
			payload := e.Payload.(event.FlowResumedPayload)
			mu.Lock()
			resumed = &payload
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	blocking := newBlockingNode()
	g := mustGraph(t, blocking.node("B"))
	sessionID, err := h.Start(context.Background(), g, "")
	require.NoError(t, err)
	<-blocking.started
	_, err = h.Pause(WithResumable())
	require.NoError(t, err)
	waitStatus(t, h, StatusPaused)

	require.NoError(t, h.Resume(context.Background(), sessionID, "go on"))
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = h.Wait(ctx)
	require.NoError(t, err)

	h.Registry().Flush()
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, resumed)
	assert.Equal(t, sessionID, resumed.SessionID)
	assert.Equal(t, "B", resumed.NodeID)
	assert.Equal(t, 1, resumed.InjectedMessages)
}

func TestStatusResponsiveDuringSlowHandler(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	_, err = h.RegisterChannel("slow-observer", map[string]channel.Handler{
		"flow:paused": func(*event.Event) {
			close(entered)
			<-release
		},
	})
	require.NoError(t, err)
	defer close(release)

	blocking := newBlockingNode()
	g := mustGraph(t, blocking.node("work"))
	sessionID, err := h.Start(context.Background(), g, "")
	require.NoError(t, err)

	<-blocking.started
	_, err = h.Pause(WithResumable())
	require.NoError(t, err)
	<-entered

	// The flow:paused handler is still parked; status and session reads
	// must not wait for it.
	waitStatus(t, h, StatusPaused)
	_, ok := h.PausedSession(sessionID)
	assert.True(t, ok)
}

func TestPauseIdempotent(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()
	logged := newEventLog(t, h)

	blocking := newBlockingNode()
	g := mustGraph(t, blocking.node("B"))
	sessionID, err := h.Start(context.Background(), g, "")
	require.NoError(t, err)
	<-blocking.started

	_, err = h.Pause(WithResumable())
	require.NoError(t, err)
	_, err = h.Pause(WithResumable())
	require.NoError(t, err)

	waitStatus(t, h, StatusPaused)

	// Pausing an already-paused session is a no-op.
	id, err := h.Pause(WithResumable())
	require.NoError(t, err)
	assert.Empty(t, id)
	_, err = h.Pause()
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, h.Status())

	_, ok := h.PausedSession(sessionID)
	assert.True(t, ok)
	assert.Equal(t, 1, logged.count(h, event.FlowPaused))
}

func TestAbortIsTerminal(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()
	logged := newEventLog(t, h)

	blocking := newBlockingNode()
	g := mustGraph(t, funcNode("A"), blocking.node("B", "A"))
	sessionID, err := h.Start(context.Background(), g, "")
	require.NoError(t, err)
	<-blocking.started

	// No resumable flag: terminal abort.
	_, err = h.Pause(WithPauseReason("shutting down"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = h.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusAborted, h.Status())

	// An aborted session left no snapshot and can never be resumed.
	_, ok := h.PausedSession(sessionID)
	assert.False(t, ok)
	err = h.Resume(context.Background(), sessionID, "please")
	var notFound *SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)

	assert.Equal(t, 1, logged.count(h, event.FlowAborted))
	assert.Equal(t, 0, logged.count(h, event.FlowPaused))
}

func TestNodeFailureAborts(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()
	logged := newEventLog(t, h)

	boom := errors.New("boom")
	g := mustGraph(t,
		funcNode("A"),
		&graph.Node{ID: "B", DependsOn: []string{"A"}, Run: func(ctx context.Context, in *graph.Input) (any, error) {
			return nil, boom
		}},
	)
	_, err = h.Start(context.Background(), g, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	result, err := h.Wait(ctx)
	var nodeErr *graph.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "B", nodeErr.NodeID)
	assert.Equal(t, map[string]any{"A": "A-out"}, result.Outputs)
	assert.Equal(t, StatusAborted, h.Status())
	assert.Equal(t, 1, logged.count(h, event.NodeError))
}

func TestResumeUnknownSession(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	err = h.Resume(context.Background(), "no-such-session", "hello")
	var notFound *SessionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "no-such-session", notFound.SessionID)
	// A failed resume never mutates the status.
	assert.Equal(t, StatusIdle, h.Status())
}

func TestResumeRequiresMessage(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	err = h.Resume(context.Background(), "whatever", "")
	assert.ErrorIs(t, err, ErrMessageRequired)
}

func TestEnqueueWhilePaused(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	blocking := newBlockingNode()
	g := mustGraph(t, blocking.node("work"))

	sessionID, err := h.Start(context.Background(), g, "")
	require.NoError(t, err)

	<-blocking.started
	_, err = h.Pause(WithResumable())
	require.NoError(t, err)
	waitStatus(t, h, StatusPaused)

	require.NoError(t, h.Enqueue(sessionID, "first"))
	require.NoError(t, h.Enqueue(sessionID, "second"))
	require.NoError(t, h.Resume(context.Background(), sessionID, "third"))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = h.Wait(ctx)
	require.NoError(t, err)

	// All queued messages arrive together, in enqueue order.
	assert.Equal(t, []string{"first", "second", "third"}, blocking.lastMessages())
}

func TestEnqueueValidation(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	assert.ErrorIs(t, h.Enqueue("whatever", ""), ErrMessageRequired)

	var notFound *SessionNotFoundError
	err = h.Enqueue("missing", "hello")
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.SessionID)
}

func TestResumeWhileRunning(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	blocking := newBlockingNode()
	g := mustGraph(t, blocking.node("B"))
	sessionID, err := h.Start(context.Background(), g, "")
	require.NoError(t, err)
	<-blocking.started

	err = h.Resume(context.Background(), sessionID, "hello")
	var alreadyRunning *SessionAlreadyRunningError
	require.ErrorAs(t, err, &alreadyRunning)
	assert.Equal(t, sessionID, alreadyRunning.SessionID)
	assert.Equal(t, StatusRunning, h.Status())

	_, err = h.Pause(WithResumable())
	require.NoError(t, err)
	waitStatus(t, h, StatusPaused)
	require.NoError(t, h.Resume(context.Background(), sessionID, "hello"))
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = h.Wait(ctx)
	require.NoError(t, err)
}

func TestStartDeliversInputMessage(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	var got []string
	g := mustGraph(t, &graph.Node{ID: "first", Run: func(ctx context.Context, in *graph.Input) (any, error) {
		got = in.Messages
		return "ok", nil
	}})
	_, err = h.Start(context.Background(), g, "kick off")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err = h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kick off"}, got)
}

func TestHubReusableAfterCompletion(t *testing.T) {
	h, err := New()
	require.NoError(t, err)
	defer h.Close()

	for i := 0; i < 3; i++ {
		_, err := h.Start(context.Background(), mustGraph(t, funcNode("a")), "")
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		result, err := h.Wait(ctx)
		cancel()
		require.NoError(t, err)
		assert.True(t, result.Terminated)
	}
}
