package evaluator

import (
	"context"
	"html"

	"github.com/ethanlchristensen/flowmesh/binder"
	"github.com/ethanlchristensen/flowmesh/graph"
)

// TemplateEvaluator renders the node's configured template against its
// upstream inputs, node-local variables and flow variables. Upstream values
// shadow node-local variables of the same name.
type TemplateEvaluator struct{}

// NewTemplateEvaluator constructs a TemplateEvaluator.
func NewTemplateEvaluator() *TemplateEvaluator { return &TemplateEvaluator{} }

// Evaluate implements Evaluator.
func (e *TemplateEvaluator) Evaluate(_ context.Context, req *Request) (*Result, error) {
	cfg, ok := req.Node.Config.(graph.TemplateConfig)
	if !ok {
		return nil, newError("invalid_config", "node %s is not a template node", req.Node.ID)
	}
	if cfg.Template == "" {
		return nil, newError("empty_template", "template is empty")
	}

	scope := make(map[string]any, len(req.Named)+len(cfg.Variables))
	for k, v := range cfg.Variables {
		scope[k] = v
	}
	for k, v := range req.Named {
		scope[k] = v
	}

	bindCtx := binder.Context{
		Inputs:       scope,
		Variables:    req.Variables,
		InitialInput: req.InitialInput,
	}
	var transform func(string) string
	if cfg.EscapeHTML {
		transform = html.EscapeString
	}
	rendered, warnings := binder.ResolveWith(cfg.Template, bindCtx, transform)

	return &Result{Input: req.PrimaryInput(), Output: rendered, Warnings: warnings}, nil
}
