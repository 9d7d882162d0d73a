package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanlchristensen/flowmesh/graph"
)

func mergeRequest(cfg graph.MergeConfig, inputs ...NodeInput) *Request {
	return &Request{
		Node:   graph.Node{ID: "merge", Type: graph.TypeMerge, Config: cfg},
		Inputs: inputs,
	}
}

func TestMergeEvaluator_Concat(t *testing.T) {
	res, err := NewMergeEvaluator().Evaluate(context.Background(), mergeRequest(
		graph.MergeConfig{Strategy: "concat", Separator: " | "},
		NodeInput{SourceID: "a", Value: "one"},
		NodeInput{SourceID: "b", Value: "two"},
	))
	require.NoError(t, err)
	assert.Equal(t, "one | two", res.Output)
}

func TestMergeEvaluator_ConcatDefaultSeparator(t *testing.T) {
	res, err := NewMergeEvaluator().Evaluate(context.Background(), mergeRequest(
		graph.MergeConfig{Strategy: "concat"},
		NodeInput{SourceID: "a", Value: "one"},
		NodeInput{SourceID: "b", Value: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, "one\n2", res.Output)
}

func TestMergeEvaluator_Array(t *testing.T) {
	res, err := NewMergeEvaluator().Evaluate(context.Background(), mergeRequest(
		graph.MergeConfig{Strategy: "array"},
		NodeInput{SourceID: "a", Value: "one"},
		NodeInput{SourceID: "b", Value: map[string]any{"k": "v"}},
	))
	require.NoError(t, err)
	assert.Equal(t, []any{"one", map[string]any{"k": "v"}}, res.Output)
}

func TestMergeEvaluator_ObjectKeyedByHandleThenSource(t *testing.T) {
	res, err := NewMergeEvaluator().Evaluate(context.Background(), mergeRequest(
		graph.MergeConfig{Strategy: "object"},
		NodeInput{SourceID: "a", Handle: "left", Value: 1},
		NodeInput{SourceID: "b", Value: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"left": 1, "b": 2}, res.Output)
}

func TestMergeEvaluator_NoInputsFails(t *testing.T) {
	_, err := NewMergeEvaluator().Evaluate(context.Background(),
		mergeRequest(graph.MergeConfig{Strategy: "concat"}))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "no_inputs", evalErr.Code)
}

func TestMergeEvaluator_UnknownStrategy(t *testing.T) {
	_, err := NewMergeEvaluator().Evaluate(context.Background(), mergeRequest(
		graph.MergeConfig{Strategy: "zip"},
		NodeInput{SourceID: "a", Value: "x"},
	))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "invalid_strategy", evalErr.Code)
}
