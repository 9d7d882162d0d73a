package evaluator

import (
	"context"
	"regexp"
	"strings"

	"github.com/ethanlchristensen/flowmesh/binder"
	"github.com/ethanlchristensen/flowmesh/graph"
)

// TextTransformerEvaluator applies a string transformation to the node's
// input. All transforms are synchronous and never suspend.
type TextTransformerEvaluator struct{}

// NewTextTransformerEvaluator constructs a TextTransformerEvaluator.
func NewTextTransformerEvaluator() *TextTransformerEvaluator { return &TextTransformerEvaluator{} }

// Evaluate implements Evaluator.
func (e *TextTransformerEvaluator) Evaluate(_ context.Context, req *Request) (*Result, error) {
	cfg, ok := req.Node.Config.(graph.TextTransformerConfig)
	if !ok {
		return nil, newError("invalid_config", "node %s is not a text_transformer node", req.Node.ID)
	}

	input := binder.Stringify(req.PrimaryInput())

	var output string
	switch cfg.TransformType {
	case "uppercase":
		output = strings.ToUpper(input)
	case "lowercase":
		output = strings.ToLower(input)
	case "trim":
		output = strings.TrimSpace(input)
	case "replace":
		if cfg.SearchValue == "" {
			return nil, newError("invalid_transform", "replace transform requires a search value")
		}
		output = strings.ReplaceAll(input, cfg.SearchValue, cfg.ReplaceValue)
	case "regex_extract":
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, &Error{Code: "invalid_pattern", Message: "invalid extraction pattern", Err: err}
		}
		match := re.FindStringSubmatch(input)
		switch {
		case match == nil:
			output = ""
		case len(match) > 1:
			output = match[1]
		default:
			output = match[0]
		}
	default:
		return nil, newError("invalid_transform", "unknown transform type %q", cfg.TransformType)
	}

	return &Result{Input: input, Output: output}, nil
}
