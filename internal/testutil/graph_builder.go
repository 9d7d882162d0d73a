package testutil

import (
	"fmt"

	"github.com/ethanlchristensen/flowmesh/graph"
)

// GraphBuilder helps construct flow graphs with fluent chaining for tests.
// Example:
//
//	g := NewGraphBuilder("flow-1").
//		Node("in", graph.InputConfig{Value: "hello"}).
//		Node("out", graph.OutputConfig{Format: "text"}).
//		Edge("in", "out").
//		Build()
type GraphBuilder struct {
	g       graph.Graph
	edgeSeq int
}

// NewGraphBuilder creates a new builder for a graph with the given id.
// Use chainable methods (Node, Edge, Variable) then call Build.
func NewGraphBuilder(id string) *GraphBuilder {
	return &GraphBuilder{g: graph.Graph{ID: id, Name: id}}
}

// Node appends a node whose type is derived from its config (chainable).
func (b *GraphBuilder) Node(id string, cfg graph.Config) *GraphBuilder {
	b.g.Nodes = append(b.g.Nodes, graph.Node{ID: id, Type: cfg.NodeType(), Label: id, Config: cfg})
	return b
}

// Edge appends an edge from source to target with generated id (chainable).
func (b *GraphBuilder) Edge(source, target string) *GraphBuilder {
	return b.EdgeHandle(source, "", target, "")
}

// EdgeHandle appends an edge with explicit handles (chainable).
func (b *GraphBuilder) EdgeHandle(source, sourceHandle, target, targetHandle string) *GraphBuilder {
	b.edgeSeq++
	b.g.Edges = append(b.g.Edges, graph.Edge{
		ID:           fmt.Sprintf("e%d", b.edgeSeq),
		Source:       source,
		Target:       target,
		SourceHandle: sourceHandle,
		TargetHandle: targetHandle,
	})
	return b
}

// Variable sets a flow scoped variable (chainable).
func (b *GraphBuilder) Variable(key string, val any) *GraphBuilder {
	if b.g.Variables == nil {
		b.g.Variables = map[string]any{}
	}
	b.g.Variables[key] = val
	return b
}

// Build returns the constructed graph.
func (b *GraphBuilder) Build() *graph.Graph {
	g := b.g
	return &g
}

// LinearFlow builds the canonical three node pipeline used across engine
// tests: an input node feeding an llm node feeding a text output node.
func LinearFlow(inputValue, providerName, model, promptTemplate string) *graph.Graph {
	return NewGraphBuilder("linear-flow").
		Node("in", graph.InputConfig{Value: inputValue}).
		Node("llm", graph.LLMConfig{Provider: providerName, Model: model, UserPromptTemplate: promptTemplate}).
		Node("out", graph.OutputConfig{Format: "text"}).
		Edge("in", "llm").
		Edge("llm", "out").
		Build()
}
