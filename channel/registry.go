//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

// Package channel provides the pattern-matched publish/subscribe registry
// used to fan out execution events to observers.
package channel

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/panjf2000/ants/v2"

	"github.com/Open-Harness/open-harness-sub005/event"
	"github.com/Open-Harness/open-harness-sub005/log"
)

// Handler receives a matched event. Handlers are pure observers: they cannot
// alter flow execution, and a panicking handler is isolated from the rest.
type Handler func(*event.Event)

type patternHandler struct {
	pattern string
	handler Handler
}

// subscription is one named channel: a set of glob patterns, each bound to a
// handler.
type subscription struct {
	name     string
	handlers []patternHandler
}

// Registry routes events to every subscription whose pattern set matches the
// event name. It owns no execution state; it is purely a fan-out table.
//
// Delivery is asynchronous relative to the publisher: Publish never blocks on
// handler completion. A single-worker pool keeps deliveries in publish order.
type Registry struct {
	mu   sync.RWMutex
	subs []*subscription

	qmu      sync.Mutex
	queue    []*event.Event
	draining bool

	pool *ants.Pool
	wg   sync.WaitGroup
}

// New creates an empty registry with its dispatch worker.
func New() (*Registry, error) {
	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, fmt.Errorf("create dispatch pool: %w", err)
	}
	return &Registry{pool: pool}, nil
}

// Register adds a named subscription mapping glob patterns to handlers.
// Patterns use colon-delimited segments; "flow:*" matches "flow:paused" but
// not "node:start". The returned function removes the subscription.
func (r *Registry) Register(name string, patterns map[string]Handler) (func(), error) {
	if name == "" {
		return nil, fmt.Errorf("channel name cannot be empty")
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("channel %s has no patterns", name)
	}
	sub := &subscription{name: name}
	for pattern, handler := range patterns {
		if handler == nil {
			return nil, fmt.Errorf("channel %s: pattern %s has nil handler", name, pattern)
		}
		if !doublestar.ValidatePattern(toPath(pattern)) {
			return nil, fmt.Errorf("channel %s: invalid pattern %s", name, pattern)
		}
		sub.handlers = append(sub.handlers, patternHandler{pattern: pattern, handler: handler})
	}
	// Map iteration order is random; sort for deterministic delivery within
	// one subscription.
	sort.Slice(sub.handlers, func(i, j int) bool {
		return sub.handlers[i].pattern < sub.handlers[j].pattern
	})

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	return func() { r.unregister(sub) }, nil
}

func (r *Registry) unregister(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s == sub {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every handler whose pattern matches the
// event name, in registration order. It returns immediately; the event is
// queued and the dispatch worker drains the queue, so a slow handler never
// stalls a publisher.
func (r *Registry) Publish(e *event.Event) {
	if e == nil {
		return
	}
	r.wg.Add(1)
	r.qmu.Lock()
	r.queue = append(r.queue, e)
	if r.draining {
		r.qmu.Unlock()
		return
	}
	r.draining = true
	r.qmu.Unlock()

	// At most one drain task is in flight, so Submit never waits for a
	// worker even with a single-worker pool.
	if err := r.pool.Submit(r.drain); err != nil {
		r.qmu.Lock()
		r.draining = false
		dropped := len(r.queue)
		r.queue = nil
		r.qmu.Unlock()
		for i := 0; i < dropped; i++ {
			r.wg.Done()
		}
		log.Warnf("channel: dropping %d event(s): %v", dropped, err)
	}
}

// drain delivers queued events in publish order until the queue empties.
func (r *Registry) drain() {
	for {
		r.qmu.Lock()
		if len(r.queue) == 0 {
			r.draining = false
			r.qmu.Unlock()
			return
		}
		e := r.queue[0]
		r.queue = r.queue[1:]
		r.qmu.Unlock()

		r.deliver(e)
		r.wg.Done()
	}
}

func (r *Registry) deliver(e *event.Event) {
	r.mu.RLock()
	subs := make([]*subscription, len(r.subs))
	copy(subs, r.subs)
	r.mu.RUnlock()

	for _, sub := range subs {
		for _, ph := range sub.handlers {
			if !Match(ph.pattern, e.Name) {
				continue
			}
			r.invoke(sub.name, ph.handler, e)
		}
	}
}

// invoke runs one handler, containing any panic so the remaining handlers
// still receive the event.
func (r *Registry) invoke(name string, h Handler, e *event.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("channel %s: handler panic on event %s: %v", name, e.Name, rec)
		}
	}()
	h(e)
}

// Flush blocks until every event published so far has been delivered.
func (r *Registry) Flush() {
	r.wg.Wait()
}

// Close flushes pending deliveries and releases the dispatch worker.
func (r *Registry) Close() {
	r.wg.Wait()
	r.pool.Release()
}

// Match reports whether a colon-delimited glob pattern matches an event
// name. A "*" matches within a single segment only, so "flow:*" does not
// match "flow:node:start".
func Match(pattern, name string) bool {
	ok, err := doublestar.Match(toPath(pattern), toPath(name))
	return err == nil && ok
}

// toPath maps colon-delimited names onto the path-segment form doublestar
// matches against.
func toPath(name string) string {
	return strings.ReplaceAll(name, ":", "/")
}
