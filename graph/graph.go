//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

// Package graph provides the node dependency graph, its scheduler and the
// executor that walks a scheduled order under cooperative cancellation.
package graph

import (
	"context"
	"fmt"
	"maps"
)

// NodeType distinguishes deterministic nodes from agent-backed ones.
type NodeType string

// Node types.
const (
	// NodeTypeFunction marks a deterministic node, short enough that
	// cancellation checks at its boundaries suffice.
	NodeTypeFunction NodeType = "function"
	// NodeTypeAgent marks a node that delegates to the agent provider
	// boundary and may run for an unbounded duration. Its run must poll the
	// ctx it is handed.
	NodeTypeAgent NodeType = "agent"
)

// Input is what a node run receives.
type Input struct {
	// SessionID identifies the execution attempt.
	SessionID string

	// Outputs holds the recorded output of every node completed so far,
	// keyed by node ID. The map is a copy; mutating it has no effect on
	// execution.
	Outputs map[string]any

	// Messages holds queued inbound messages. It is non-empty only for the
	// first node run after a resume, which receives the whole queue at once.
	Messages []string
}

// NodeFunc is the work a node performs. ctx carries the cancellation token
// for the current execution attempt; long-running work must poll it.
type NodeFunc func(ctx context.Context, in *Input) (any, error)

// Node is a unit of work in the execution graph.
type Node struct {
	ID          string
	Name        string
	Description string
	Type        NodeType
	// DependsOn lists node IDs that must complete before this node runs.
	DependsOn []string
	Run       NodeFunc
}

// Graph is an immutable set of nodes plus the dependency edges implied by
// DependsOn. Construction validates references; acyclicity is enforced by
// Schedule, not assumed here.
type Graph struct {
	nodes []*Node
	index map[string]*Node
}

// New creates a graph from the given nodes, preserving their order. Every
// dependency must reference a node in the same graph; an unresolved
// dependency is a construction-time error.
func New(nodes ...*Node) (*Graph, error) {
	g := &Graph{index: make(map[string]*Node, len(nodes))}
	for _, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("graph node cannot be nil")
		}
		if n.ID == "" {
			return nil, fmt.Errorf("node ID cannot be empty for %+v", n)
		}
		if n.Run == nil {
			return nil, fmt.Errorf("node %s has no run function", n.ID)
		}
		if _, exists := g.index[n.ID]; exists {
			return nil, fmt.Errorf("node with ID %s already exists", n.ID)
		}
		g.index[n.ID] = n
		g.nodes = append(g.nodes, n)
	}
	for _, n := range g.nodes {
		for _, dep := range n.DependsOn {
			if _, exists := g.index[dep]; !exists {
				return nil, fmt.Errorf("node %s depends on unknown node %s", n.ID, dep)
			}
		}
	}
	return g, nil
}

// Nodes returns the nodes in input order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, exists := g.index[id]
	return n, exists
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

func cloneOutputs(outputs map[string]any) map[string]any {
	if outputs == nil {
		return make(map[string]any)
	}
	return maps.Clone(outputs)
}
