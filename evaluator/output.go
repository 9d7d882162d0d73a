package evaluator

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/ethanlchristensen/flowmesh/binder"
	"github.com/ethanlchristensen/flowmesh/graph"
)

// OutputEvaluator formats the upstream value per the node's format and tags
// it with presentation metadata (copyable/downloadable). No external call.
type OutputEvaluator struct{}

// NewOutputEvaluator constructs an OutputEvaluator.
func NewOutputEvaluator() *OutputEvaluator { return &OutputEvaluator{} }

// Evaluate implements Evaluator.
func (e *OutputEvaluator) Evaluate(_ context.Context, req *Request) (*Result, error) {
	cfg, ok := req.Node.Config.(graph.OutputConfig)
	if !ok {
		return nil, newError("invalid_config", "node %s is not an output node", req.Node.ID)
	}

	input := req.PrimaryInput()

	var formatted string
	switch cfg.Format {
	case "text", "markdown", "code":
		formatted = binder.Stringify(input)
	case "json":
		var err error
		formatted, err = formatJSON(input)
		if err != nil {
			return nil, err
		}
	default:
		return nil, newError("invalid_format", "unknown output format %q", cfg.Format)
	}

	meta := map[string]any{
		"format":       cfg.Format,
		"copyable":     cfg.Copyable,
		"downloadable": cfg.Downloadable,
	}
	if cfg.Language != "" {
		meta["language"] = cfg.Language
	}
	if cfg.DownloadFilename != "" {
		meta["downloadFilename"] = cfg.DownloadFilename
	}

	return &Result{Input: input, Output: formatted, Meta: meta}, nil
}

// formatJSON renders the value as indented JSON. String input must already
// be valid JSON; other values must be JSON-serializable.
func formatJSON(input any) (string, error) {
	if s, isString := stringInput(input); isString {
		if !gjson.Valid(s) {
			return "", newError("format_error", "value is not valid JSON")
		}
		return string(pretty.Pretty([]byte(s))), nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "", &Error{Code: "format_error", Message: "value is not JSON-serializable", Err: err}
	}
	return string(pretty.Pretty(data)), nil
}

func stringInput(input any) (string, bool) {
	switch v := input.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
