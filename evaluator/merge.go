package evaluator

import (
	"context"
	"strings"

	"github.com/ethanlchristensen/flowmesh/binder"
	"github.com/ethanlchristensen/flowmesh/graph"
)

// MergeEvaluator fans multiple upstream values into one. Inputs arrive in
// edge declaration order; the strategy decides the shape of the result.
type MergeEvaluator struct{}

// NewMergeEvaluator constructs a MergeEvaluator.
func NewMergeEvaluator() *MergeEvaluator { return &MergeEvaluator{} }

// Evaluate implements Evaluator.
func (e *MergeEvaluator) Evaluate(_ context.Context, req *Request) (*Result, error) {
	cfg, ok := req.Node.Config.(graph.MergeConfig)
	if !ok {
		return nil, newError("invalid_config", "node %s is not a merge node", req.Node.ID)
	}
	if len(req.Inputs) == 0 {
		return nil, newError("no_inputs", "merge node has no upstream values")
	}

	var output any
	switch cfg.Strategy {
	case "concat":
		sep := cfg.Separator
		if sep == "" {
			sep = "\n"
		}
		parts := make([]string, len(req.Inputs))
		for i, in := range req.Inputs {
			parts[i] = binder.Stringify(in.Value)
		}
		output = strings.Join(parts, sep)
	case "array":
		values := make([]any, len(req.Inputs))
		for i, in := range req.Inputs {
			values[i] = in.Value
		}
		output = values
	case "object":
		values := make(map[string]any, len(req.Inputs))
		for _, in := range req.Inputs {
			key := in.Handle
			if key == "" {
				key = in.SourceID
			}
			values[key] = in.Value
		}
		output = values
	default:
		return nil, newError("invalid_strategy", "unknown merge strategy %q", cfg.Strategy)
	}

	return &Result{Input: req.JoinedText(), Output: output}, nil
}
