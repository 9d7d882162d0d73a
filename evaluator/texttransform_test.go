package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanlchristensen/flowmesh/graph"
)

func transformRequest(cfg graph.TextTransformerConfig, input any) *Request {
	return &Request{
		Node:   graph.Node{ID: "tt", Type: graph.TypeTextTransformer, Config: cfg},
		Inputs: []NodeInput{{SourceID: "up", Value: input}},
	}
}

func TestTextTransformer_Transforms(t *testing.T) {
	tests := []struct {
		name   string
		cfg    graph.TextTransformerConfig
		input  any
		expect string
	}{
		{"uppercase", graph.TextTransformerConfig{TransformType: "uppercase"}, "hello", "HELLO"},
		{"lowercase", graph.TextTransformerConfig{TransformType: "lowercase"}, "HeLLo", "hello"},
		{"trim", graph.TextTransformerConfig{TransformType: "trim"}, "  padded  ", "padded"},
		{"replace", graph.TextTransformerConfig{TransformType: "replace", SearchValue: "cat", ReplaceValue: "dog"}, "cat and cat", "dog and dog"},
		{"regex group", graph.TextTransformerConfig{TransformType: "regex_extract", Pattern: `id=(\d+)`}, "id=42 rest", "42"},
		{"regex whole match", graph.TextTransformerConfig{TransformType: "regex_extract", Pattern: `\d+`}, "abc 73 xyz", "73"},
		{"regex no match", graph.TextTransformerConfig{TransformType: "regex_extract", Pattern: `z{5}`}, "abc", ""},
		{"stringified input", graph.TextTransformerConfig{TransformType: "uppercase"}, 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewTextTransformerEvaluator().Evaluate(context.Background(), transformRequest(tt.cfg, tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expect, res.Output)
		})
	}
}

func TestTextTransformer_InvalidPattern(t *testing.T) {
	_, err := NewTextTransformerEvaluator().Evaluate(context.Background(),
		transformRequest(graph.TextTransformerConfig{TransformType: "regex_extract", Pattern: "(["}, "x"))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "invalid_pattern", evalErr.Code)
}

func TestTextTransformer_UnknownType(t *testing.T) {
	_, err := NewTextTransformerEvaluator().Evaluate(context.Background(),
		transformRequest(graph.TextTransformerConfig{TransformType: "reverse"}, "x"))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "invalid_transform", evalErr.Code)
}
