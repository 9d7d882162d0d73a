package evaluator

import (
	"context"
	"regexp"
	"unicode/utf8"

	"github.com/ethanlchristensen/flowmesh/graph"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// InputEvaluator resolves an input node: a pass-through with no external
// call. When the node declares a variable name and the run's initial input
// carries that key, the supplied value wins over the configured literal.
type InputEvaluator struct{}

// NewInputEvaluator constructs an InputEvaluator.
func NewInputEvaluator() *InputEvaluator { return &InputEvaluator{} }

// Evaluate implements Evaluator.
func (e *InputEvaluator) Evaluate(_ context.Context, req *Request) (*Result, error) {
	cfg, ok := req.Node.Config.(graph.InputConfig)
	if !ok {
		return nil, newError("invalid_config", "node %s is not an input node", req.Node.ID)
	}

	if cfg.VariableName != "" && !identifierRe.MatchString(cfg.VariableName) {
		return nil, newError("invalid_variable", "variable name %q is not a valid identifier", cfg.VariableName)
	}

	var value any = cfg.Value
	if cfg.VariableName != "" {
		if v, present := req.InitialInput[cfg.VariableName]; present {
			value = v
		}
	}

	if s, isString := value.(string); isString && cfg.MaxLength > 0 && len(s) > cfg.MaxLength {
		value = truncate(s, cfg.MaxLength)
	}

	return &Result{Input: value, Output: value}, nil
}

// truncate caps s at limit bytes, backing off to a rune boundary so the
// result is always valid UTF-8.
func truncate(s string, limit int) string {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
