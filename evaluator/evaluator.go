package evaluator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethanlchristensen/flowmesh/binder"
	"github.com/ethanlchristensen/flowmesh/graph"
)

// NodeInput is one upstream value delivered to a node, in edge declaration
// order. Handle is the edge's target handle when the node has named ports.
type NodeInput struct {
	SourceID string
	Handle   string
	Value    any
}

// Request carries everything an evaluator may read: the node, its resolved
// upstream inputs, the run's variables and initial input, and an optional
// streaming callback. The engine owns construction; evaluators only read.
type Request struct {
	Node         graph.Node
	Inputs       []NodeInput    // upstream values in edge order
	Named        map[string]any // binder scope: output variable names, handles, "input"
	Variables    map[string]any
	InitialInput map[string]any

	// OnChunk, when non-nil, receives incremental token chunks from
	// streaming model calls for live status propagation.
	OnChunk func(chunk string)
}

// BindContext assembles the binder resolution context for this request.
func (r *Request) BindContext() binder.Context {
	return binder.Context{Inputs: r.Named, Variables: r.Variables, InitialInput: r.InitialInput}
}

// PrimaryInput returns the first upstream value, or nil if the node has none.
func (r *Request) PrimaryInput() any {
	if len(r.Inputs) == 0 {
		return nil
	}
	return r.Inputs[0].Value
}

// JoinedText returns all upstream values stringified and joined with
// newlines, the canonical "input" seen by text consuming nodes.
func (r *Request) JoinedText() string {
	parts := make([]string, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		parts = append(parts, binder.Stringify(in.Value))
	}
	return strings.Join(parts, "\n")
}

// Result is a successful evaluation. Input echoes what the node consumed
// (e.g. the resolved prompt) for the execution record; Warnings carry
// non-fatal issues such as unresolved placeholders.
type Result struct {
	Input    any
	Output   any
	Meta     map[string]any
	Warnings []string
}

// Evaluator computes one node's result. Implementations must honor ctx
// cancellation at their suspension points and must not retain req after
// returning.
type Evaluator interface {
	Evaluate(ctx context.Context, req *Request) (*Result, error)
}

// Registry maps node types to their evaluators.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[graph.NodeType]Evaluator
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[graph.NodeType]Evaluator)}
}

// Register adds or replaces the evaluator for a node type.
func (r *Registry) Register(t graph.NodeType, e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[t] = e
}

// Get returns the evaluator for a node type.
func (r *Registry) Get(t graph.NodeType) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[t]
	if !ok {
		return nil, fmt.Errorf("no evaluator registered for node type %q", t)
	}
	return e, nil
}

// IsRegistered reports whether a node type has an evaluator.
func (r *Registry) IsRegistered(t graph.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.evaluators[t]
	return ok
}
