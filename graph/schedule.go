//
// Copyright (C) 2026 Open-Harness. All rights reserved.
//
// open-harness is licensed under the Apache License Version 2.0.
//
//

package graph

// Schedule computes a valid execution order for the graph using Kahn's
// algorithm. The order is deterministic: when several nodes are ready at the
// same time, the one earliest in input order runs first.
//
// If the graph contains a cycle, Schedule returns a *CycleError listing
// every node that could not be scheduled.
//
// Schedule is a pure function: no I/O, no side effects.
func Schedule(g *Graph) ([]*Node, error) {
	nodes := g.Nodes()
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			indegree[n.ID]++
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	// ready holds input-order indices of zero-in-degree nodes, ascending.
	var ready []int
	for i, n := range nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, i)
		}
	}

	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		pos[n.ID] = i
	}

	order := make([]*Node, 0, len(nodes))
	scheduled := make(map[string]bool, len(nodes))
	for len(ready) > 0 {
		idx := ready[0]
		ready = ready[1:]
		n := nodes[idx]
		order = append(order, n)
		scheduled[n.ID] = true
		for _, depID := range dependents[n.ID] {
			indegree[depID]--
			if indegree[depID] == 0 {
				ready = insertSorted(ready, pos[depID])
			}
		}
	}

	if len(order) < len(nodes) {
		cycle := &CycleError{}
		for _, n := range nodes {
			if !scheduled[n.ID] {
				cycle.NodeIDs = append(cycle.NodeIDs, n.ID)
			}
		}
		return nil, cycle
	}
	return order, nil
}

// insertSorted inserts idx into the ascending slice, keeping it sorted so
// the earliest-input-order ready node is always dequeued first.
func insertSorted(s []int, idx int) []int {
	i := 0
	for i < len(s) && s[i] < idx {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = idx
	return s
}
