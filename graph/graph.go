package graph

import (
	"encoding/json"
	"fmt"
)

// Edge links a source node's output to a target node's input. It doubles as
// a dependency: the target is not ready until the source has a terminal
// result. LastDataPassed is informational only and never consulted by the
// engine.
type Edge struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	Target         string `json:"target"`
	SourceHandle   string `json:"sourceHandle,omitempty"`
	TargetHandle   string `json:"targetHandle,omitempty"`
	LastDataPassed any    `json:"lastDataPassed,omitempty"`
}

// Graph is the user-authored flow: an ordered set of nodes, a set of edges
// and flow scoped variables visible to every node. The engine treats it as
// read-only for the lifetime of a run.
type Graph struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Nodes     []Node         `json:"nodes"`
	Edges     []Edge         `json:"edges"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Parse decodes a graph from its JSON wire form.
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	return &g, nil
}

// Node returns the node with the given id, or false if absent.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// DependenciesOf returns the ids of all nodes with an edge into nodeID,
// preserving edge declaration order and dropping duplicates.
func (g *Graph) DependenciesOf(nodeID string) []string {
	var deps []string
	seen := map[string]bool{}
	for _, e := range g.Edges {
		if e.Target == nodeID && !seen[e.Source] {
			seen[e.Source] = true
			deps = append(deps, e.Source)
		}
	}
	return deps
}

// DependentsOf returns the ids of all nodes with an edge out of nodeID,
// preserving edge declaration order and dropping duplicates.
func (g *Graph) DependentsOf(nodeID string) []string {
	var deps []string
	seen := map[string]bool{}
	for _, e := range g.Edges {
		if e.Source == nodeID && !seen[e.Target] {
			seen[e.Target] = true
			deps = append(deps, e.Target)
		}
	}
	return deps
}

// NodesOfType returns all nodes of the given type in declaration order.
func (g *Graph) NodesOfType(t NodeType) []Node {
	var nodes []Node
	for _, n := range g.Nodes {
		if n.Type == t {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// EdgesInto returns the edges targeting nodeID in declaration order. Handles
// on these edges name the target's input ports.
func (g *Graph) EdgesInto(nodeID string) []Edge {
	var edges []Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}
