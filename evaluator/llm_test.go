package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/provider"
)

func llmRequest(cfg graph.LLMConfig, named map[string]any) *Request {
	return &Request{
		Node:  graph.Node{ID: "llm", Type: graph.TypeLLM, Config: cfg},
		Named: named,
	}
}

func newLLMFixture(t *testing.T) (*LLMEvaluator, *provider.MockProvider) {
	t.Helper()
	mock := provider.NewMockProvider("mock")
	registry := provider.NewRegistry()
	registry.Register("mock", mock)
	return NewLLMEvaluator(registry), mock
}

func TestLLMEvaluator_ResolvesPromptAndReturnsText(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.AddResponse("Write about bees", "Bees pollinate crops.")

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "Write about {{input}}"}
	res, err := eval.Evaluate(context.Background(), llmRequest(cfg, map[string]any{"input": "bees"}))
	require.NoError(t, err)
	assert.Equal(t, "Bees pollinate crops.", res.Output)
	assert.Equal(t, "Write about bees", res.Input)
	assert.Empty(t, res.Warnings)
}

func TestLLMEvaluator_UnresolvedPlaceholderWarns(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.AddResponse("Topic: {{missing}}", "ok")

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "Topic: {{missing}}"}
	res, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "{{missing}}")
}

func TestLLMEvaluator_EmptyPromptFails(t *testing.T) {
	eval, _ := newLLMFixture(t)

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "   "}
	_, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "empty_prompt", evalErr.Code)
}

func TestLLMEvaluator_UnknownProvider(t *testing.T) {
	eval, _ := newLLMFixture(t)

	cfg := graph.LLMConfig{Provider: "nope", Model: "m", UserPromptTemplate: "hi"}
	_, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "unknown_provider", evalErr.Code)
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestLLMEvaluator_TransientErrorsRetried(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.AddResponse("hi", "hello")
	mock.FailWith(
		provider.NewTransientError("mock", "rate_limited", "429", nil),
		provider.NewTransientError("mock", "rate_limited", "429", nil),
	)

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "hi", MaxRetries: 2}
	res, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output)
	assert.Equal(t, 3, mock.Calls())
}

func TestLLMEvaluator_RetryBudgetExhausted(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.FailWith(
		provider.NewTransientError("mock", "rate_limited", "429", nil),
		provider.NewTransientError("mock", "rate_limited", "429", nil),
		provider.NewTransientError("mock", "rate_limited", "429", nil),
	)

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "hi", MaxRetries: 2}
	_, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "retries_exhausted", evalErr.Code)
	assert.Equal(t, map[string]any{"attempts": 3}, evalErr.Details)
	assert.Equal(t, 3, mock.Calls())
}

func TestLLMEvaluator_PermanentErrorNotRetried(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.FailWith(provider.NewPermanentError("mock", "invalid_model", "no such model", nil))

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "hi", MaxRetries: 5}
	_, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "provider_error", evalErr.Code)
	assert.Equal(t, 1, mock.Calls())
}

func TestLLMEvaluator_ZeroRetriesSingleAttempt(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.FailWith(provider.NewTransientError("mock", "rate_limited", "429", nil))

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "hi"}
	_, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls())
}

func TestLLMEvaluator_CancelledContext(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.FailWith(provider.NewTransientError("mock", "rate_limited", "429", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "hi", MaxRetries: 3, RetryDelay: 10}
	_, err := eval.Evaluate(ctx, llmRequest(cfg, nil))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "cancelled", evalErr.Code)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLLMEvaluator_StreamingForwardsChunks(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.AddResponse("hi", "abc")

	var streamed string
	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "hi", Stream: true}
	req := llmRequest(cfg, nil)
	req.OnChunk = func(chunk string) { streamed += chunk }

	res, err := eval.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Output)
	assert.Equal(t, "abc", streamed)
}

func TestLLMEvaluator_JSONResponseFormat(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.AddResponse("give json", `{"title":"Bees","count":3}`)

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "give json", ResponseFormat: "json"}
	res, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Bees", "count": float64(3)}, res.Output)
}

func TestLLMEvaluator_InvalidJSONResponse(t *testing.T) {
	eval, mock := newLLMFixture(t)
	mock.AddResponse("give json", "not json at all")

	cfg := graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "give json", ResponseFormat: "json"}
	_, err := eval.Evaluate(context.Background(), llmRequest(cfg, nil))
	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "invalid_json_response", evalErr.Code)
}
