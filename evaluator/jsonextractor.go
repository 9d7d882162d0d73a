package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ethanlchristensen/flowmesh/graph"
)

// JSONExtractorEvaluator evaluates an ordered list of keyed path lookups
// against the node's JSON input. Missing paths take the extraction's
// fallback when present; otherwise strict mode fails the node and lax mode
// substitutes null. Results assemble into an object or array per the node's
// output format.
type JSONExtractorEvaluator struct{}

// NewJSONExtractorEvaluator constructs a JSONExtractorEvaluator.
func NewJSONExtractorEvaluator() *JSONExtractorEvaluator { return &JSONExtractorEvaluator{} }

// Evaluate implements Evaluator.
func (e *JSONExtractorEvaluator) Evaluate(_ context.Context, req *Request) (*Result, error) {
	cfg, ok := req.Node.Config.(graph.JSONExtractorConfig)
	if !ok {
		return nil, newError("invalid_config", "node %s is not a json_extractor node", req.Node.ID)
	}

	input := req.PrimaryInput()
	data, err := toJSONBytes(input)
	if err != nil {
		return nil, &Error{Code: "invalid_json", Message: "input is not valid JSON", Err: err}
	}

	doc := []byte(`{}`)
	if cfg.OutputFormat == "array" {
		doc = []byte(`[]`)
	}

	var missing []string
	for _, ex := range cfg.Extractions {
		path := normalizePath(ex.Path)
		value := gjson.GetBytes(data, path)

		var extracted any
		switch {
		case value.Exists():
			extracted = value.Value()
		case ex.Fallback != nil:
			extracted = ex.Fallback
		case cfg.StrictMode:
			missing = append(missing, fmt.Sprintf("path %q not found for key %q", ex.Path, ex.Key))
			continue
		default:
			extracted = nil
		}

		if cfg.OutputFormat == "array" {
			doc, err = sjson.SetBytes(doc, "-1", extracted)
		} else {
			doc, err = sjson.SetBytes(doc, escapeKey(ex.Key), extracted)
		}
		if err != nil {
			return nil, &Error{Code: "assembly_error", Message: fmt.Sprintf("cannot assemble key %q", ex.Key), Err: err}
		}
	}

	if len(missing) > 0 {
		return nil, &Error{
			Code:    "extraction_failed",
			Message: strings.Join(missing, "; "),
			Details: map[string]any{"missingPaths": missing},
		}
	}

	var output any
	if err := json.Unmarshal(doc, &output); err != nil {
		return nil, &Error{Code: "assembly_error", Message: "assembled result is not valid JSON", Err: err}
	}

	return &Result{Input: input, Output: output}, nil
}

// toJSONBytes accepts either raw JSON text or an already structured value.
func toJSONBytes(input any) ([]byte, error) {
	switch v := input.(type) {
	case nil:
		return nil, fmt.Errorf("no input")
	case string:
		if !gjson.Valid(v) {
			return nil, fmt.Errorf("malformed JSON text")
		}
		return []byte(v), nil
	case []byte:
		if !gjson.ValidBytes(v) {
			return nil, fmt.Errorf("malformed JSON text")
		}
		return v, nil
	default:
		return json.Marshal(v)
	}
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`)

// escapeKey quotes sjson path syntax so an extraction key is always stored
// as one literal object key, never as a nested path or wildcard.
func escapeKey(key string) string {
	return keyEscaper.Replace(key)
}

// normalizePath converts the editor's JSONPath-style expressions ("$.a[0].b")
// into gjson syntax ("a.0.b"). Paths already in gjson form pass through.
func normalizePath(path string) string {
	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	return p
}
