//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"strings"
)

// CycleError is returned by Schedule when the graph contains a dependency
// cycle. NodeIDs holds every node that could not be scheduled, in input
// order, so callers can report the full cycle membership.
type CycleError struct {
	NodeIDs []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among nodes: %s", strings.Join(e.NodeIDs, ", "))
}

// NodeError wraps a failure raised while running a node.
type NodeError struct {
	NodeID string
	Err    error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PauseSignal is the cancellation cause used to request a resumable pause.
// The executor inspects context.Cause to tell a pause apart from a terminal
// abort.
type PauseSignal struct {
	Reason string
}

// Error implements the error interface.
func (p *PauseSignal) Error() string {
	if p.Reason == "" {
		return "pause requested"
	}
	return "pause requested: " + p.Reason
}
