package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanlchristensen/flowmesh/evaluator"
	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/internal/testutil"
	"github.com/ethanlchristensen/flowmesh/provider"
	"github.com/ethanlchristensen/flowmesh/run"
)

// spyEvaluator wraps another evaluator and counts invocations.
type spyEvaluator struct {
	inner evaluator.Evaluator
	calls atomic.Int32
}

func (s *spyEvaluator) Evaluate(ctx context.Context, req *evaluator.Request) (*evaluator.Result, error) {
	s.calls.Add(1)
	return s.inner.Evaluate(ctx, req)
}

// blockingEvaluator holds until released, so tests can observe mid-run state.
type blockingEvaluator struct {
	started chan string
	release chan struct{}
}

func newBlockingEvaluator() *blockingEvaluator {
	return &blockingEvaluator{started: make(chan string, 16), release: make(chan struct{})}
}

func (b *blockingEvaluator) Evaluate(ctx context.Context, req *evaluator.Request) (*evaluator.Result, error) {
	b.started <- req.Node.ID
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return &evaluator.Result{Output: "unblocked"}, nil
	}
}

func newTestEngine(t *testing.T, mock *provider.MockProvider, optFns ...func(o *Options)) *Engine {
	t.Helper()
	providers := provider.NewRegistry()
	if mock != nil {
		providers.Register("mock", mock)
	}
	all := append([]func(o *Options){func(o *Options) {
		o.Providers = providers
	}}, optFns...)
	return New(all...)
}

func runToCompletion(t *testing.T, e *Engine, g *graph.Graph, initialInput, variables map[string]any) *run.FlowExecutionResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	executionID, err := e.StartExecution(ctx, g, initialInput, variables)
	require.NoError(t, err)
	result, err := e.WaitForCompletion(ctx, executionID)
	require.NoError(t, err)
	return result
}

func nodeResult(t *testing.T, result *run.FlowExecutionResult, nodeID string) run.NodeExecutionResult {
	t.Helper()
	for _, nr := range result.NodeResults {
		if nr.NodeID == nodeID {
			return nr
		}
	}
	t.Fatalf("no result for node %s", nodeID)
	return run.NodeExecutionResult{}
}

func TestEngine_LinearFlowCompletes(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddResponse("Write about bees", "Bees pollinate crops.")
	e := newTestEngine(t, mock)

	g := testutil.LinearFlow("bees", "mock", "m", "Write about {{input}}")
	result := runToCompletion(t, e, g, nil, nil)

	assert.Equal(t, run.FlowCompleted, result.Status)
	assert.Equal(t, "Bees pollinate crops.", result.FinalOutput)
	assert.Nil(t, result.Error)
	require.NotNil(t, result.EndTime)
	assert.GreaterOrEqual(t, result.TotalExecutionTime, int64(0))

	require.Len(t, result.NodeResults, 3)
	assert.Equal(t, "in", result.NodeResults[0].NodeID)
	assert.Equal(t, "llm", result.NodeResults[1].NodeID)
	assert.Equal(t, "out", result.NodeResults[2].NodeID)
	for _, nr := range result.NodeResults {
		assert.Equal(t, run.NodeCompleted, nr.Status)
		require.NotNil(t, nr.EndTime)
	}
	assert.Equal(t, "Write about bees", result.NodeResults[1].Input)
}

func TestEngine_ValidationFailureBlocksExecution(t *testing.T) {
	e := newTestEngine(t, nil)

	g := &graph.Graph{ID: "bad", Nodes: []graph.Node{
		{ID: "in", Type: graph.TypeInput, Config: graph.InputConfig{Value: "x"}},
	}}
	_, err := e.StartExecution(context.Background(), g, nil, nil)
	var verrs graph.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.NotEmpty(t, verrs)
}

func TestEngine_PropagatedFailureSkipsDownstream(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.FailWith(provider.NewPermanentError("mock", "invalid_model", "no such model", nil))
	spy := &spyEvaluator{inner: evaluator.NewOutputEvaluator()}

	providers := provider.NewRegistry()
	providers.Register("mock", mock)
	evaluators := evaluator.NewDefaultRegistry(providers, nil)
	evaluators.Register(graph.TypeOutput, spy)

	e := New(func(o *Options) {
		o.Providers = providers
		o.Evaluators = evaluators
	})

	g := testutil.LinearFlow("bees", "mock", "m", "{{input}}")
	result := runToCompletion(t, e, g, nil, nil)

	assert.Equal(t, run.FlowFailed, result.Status)
	assert.Equal(t, int32(0), spy.calls.Load())

	llm := nodeResult(t, result, "llm")
	assert.Equal(t, run.NodeFailed, llm.Status)
	require.NotNil(t, llm.Error)
	assert.Equal(t, run.ErrCodeProvider, llm.Error.Code)

	out := nodeResult(t, result, "out")
	assert.Equal(t, run.NodeFailed, out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, run.ErrCodeUpstreamFailed, out.Error.Code)
	assert.Equal(t, "llm", out.Error.Details["failedDependency"])

	require.NotNil(t, result.Error)
	assert.Equal(t, map[string]any{"nodeId": "llm", "reason": "provider_error"}, result.Error.Details)
}

func TestEngine_CompletesWhenOneBranchFails(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddResponse("good prompt", "good answer")
	mock.FailWith(provider.NewPermanentError("mock", "bad", "boom", nil))
	e := newTestEngine(t, mock, func(o *Options) {
		o.Config = Config{MaxConcurrentNodes: 1, EventBufferSize: 16}
	})

	// Two parallel branches off one input; the failing branch dispatches
	// first, the surviving branch still reaches its output node.
	g := testutil.NewGraphBuilder("branches").
		Node("in", graph.InputConfig{Value: "x"}).
		Node("bad", graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "failing prompt"}).
		Node("good", graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "good prompt"}).
		Node("badOut", graph.OutputConfig{Format: "text"}).
		Node("goodOut", graph.OutputConfig{Format: "text"}).
		Edge("in", "bad").
		Edge("in", "good").
		Edge("bad", "badOut").
		Edge("good", "goodOut").
		Build()

	result := runToCompletion(t, e, g, nil, nil)

	assert.Equal(t, run.FlowCompleted, result.Status)
	assert.Equal(t, "good answer", result.FinalOutput)
	assert.Equal(t, run.NodeFailed, nodeResult(t, result, "bad").Status)
	assert.Equal(t, run.NodeFailed, nodeResult(t, result, "badOut").Status)
	assert.Equal(t, run.NodeCompleted, nodeResult(t, result, "goodOut").Status)
}

func TestEngine_MergeAndTransformPipeline(t *testing.T) {
	e := newTestEngine(t, nil)

	g := testutil.NewGraphBuilder("pipeline").
		Node("a", graph.InputConfig{Value: "alpha"}).
		Node("b", graph.InputConfig{Value: "beta"}).
		Node("merge", graph.MergeConfig{Strategy: "concat", Separator: ", "}).
		Node("upper", graph.TextTransformerConfig{TransformType: "uppercase"}).
		Node("out", graph.OutputConfig{Format: "text"}).
		Edge("a", "merge").
		Edge("b", "merge").
		Edge("merge", "upper").
		Edge("upper", "out").
		Build()

	result := runToCompletion(t, e, g, nil, nil)

	assert.Equal(t, run.FlowCompleted, result.Status)
	assert.Equal(t, "ALPHA, BETA", result.FinalOutput)
}

func TestEngine_InitialInputOverridesInputValue(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddResponse("Topic: ants", "about ants")
	e := newTestEngine(t, mock)

	g := testutil.NewGraphBuilder("f").
		Node("in", graph.InputConfig{Value: "bees", VariableName: "topic"}).
		Node("llm", graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "Topic: {{topic}}"}).
		Node("out", graph.OutputConfig{Format: "text"}).
		Edge("in", "llm").
		Edge("llm", "out").
		Build()

	result := runToCompletion(t, e, g, map[string]any{"topic": "ants"}, nil)
	assert.Equal(t, run.FlowCompleted, result.Status)
	assert.Equal(t, "about ants", result.FinalOutput)
}

func TestEngine_CallerVariablesOverrideGraphVariables(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddResponse("tone: casual", "done")
	e := newTestEngine(t, mock)

	g := testutil.NewGraphBuilder("f").
		Variable("tone", "formal").
		Node("in", graph.InputConfig{Value: "x"}).
		Node("llm", graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "tone: {{tone}}"}).
		Node("out", graph.OutputConfig{Format: "text"}).
		Edge("in", "llm").
		Edge("llm", "out").
		Build()

	result := runToCompletion(t, e, g, nil, map[string]any{"tone": "casual"})
	assert.Equal(t, run.FlowCompleted, result.Status)
	assert.Equal(t, "done", result.FinalOutput)
}

func TestEngine_CancelExecution(t *testing.T) {
	block := newBlockingEvaluator()
	providers := provider.NewRegistry()
	evaluators := evaluator.NewDefaultRegistry(providers, nil)
	evaluators.Register(graph.TypeTemplate, block)

	e := New(func(o *Options) {
		o.Providers = providers
		o.Evaluators = evaluators
	})

	g := testutil.NewGraphBuilder("cancellable").
		Node("in", graph.InputConfig{Value: "x"}).
		Node("slow", graph.TemplateConfig{Template: "{{input}}"}).
		Node("out", graph.OutputConfig{Format: "text"}).
		Edge("in", "slow").
		Edge("slow", "out").
		Build()

	executionID, err := e.StartExecution(context.Background(), g, nil, nil)
	require.NoError(t, err)

	select {
	case <-block.started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow node never started")
	}

	require.NoError(t, e.CancelExecution(executionID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := e.WaitForCompletion(ctx, executionID)
	require.NoError(t, err)

	assert.Equal(t, run.FlowCancelled, result.Status)
	assert.Equal(t, run.NodeCompleted, nodeResult(t, result, "in").Status)

	slow := nodeResult(t, result, "slow")
	assert.Equal(t, run.NodeFailed, slow.Status)
	require.NotNil(t, slow.Error)
	assert.Equal(t, run.ErrCodeCancelled, slow.Error.Code)

	out := nodeResult(t, result, "out")
	assert.Equal(t, run.NodeFailed, out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, run.ErrCodeCancelled, out.Error.Code)

	require.NotNil(t, result.Error)
	assert.Equal(t, run.ErrCodeCancelled, result.Error.Code)
}

func TestEngine_ConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	gate := &gateEvaluator{enter: func() {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}}

	providers := provider.NewRegistry()
	evaluators := evaluator.NewDefaultRegistry(providers, nil)
	evaluators.Register(graph.TypeTemplate, gate)

	e := New(func(o *Options) {
		o.Config = Config{MaxConcurrentNodes: 2, EventBufferSize: 16}
		o.Providers = providers
		o.Evaluators = evaluators
	})

	b := testutil.NewGraphBuilder("wide").
		Node("in", graph.InputConfig{Value: "x"}).
		Node("out", graph.OutputConfig{Format: "text"})
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		b.Node(id, graph.TemplateConfig{Template: "{{input}}"}).
			Edge("in", id).
			Edge(id, "out")
	}
	g := b.Build()

	result := runToCompletion(t, e, g, nil, nil)
	assert.Equal(t, run.FlowCompleted, result.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

type gateEvaluator struct {
	enter func()
}

func (g *gateEvaluator) Evaluate(_ context.Context, req *evaluator.Request) (*evaluator.Result, error) {
	g.enter()
	return &evaluator.Result{Output: req.Node.ID}, nil
}

func TestEngine_SubscribeReceivesEvents(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddResponse("hi", "abc")
	block := newBlockingEvaluator()

	providers := provider.NewRegistry()
	providers.Register("mock", mock)
	evaluators := evaluator.NewDefaultRegistry(providers, nil)
	evaluators.Register(graph.TypeTemplate, block)

	e := New(func(o *Options) {
		o.Providers = providers
		o.Evaluators = evaluators
	})

	// The blocking gate in front of the llm node keeps the run from
	// finishing before the subscription is in place; events emitted before
	// Subscribe are not replayed.
	g := testutil.NewGraphBuilder("streamed").
		Node("in", graph.InputConfig{Value: "x"}).
		Node("gate", graph.TemplateConfig{Template: "{{input}}"}).
		Node("llm", graph.LLMConfig{Provider: "mock", Model: "m", UserPromptTemplate: "hi", Stream: true}).
		Node("out", graph.OutputConfig{Format: "text"}).
		Edge("in", "gate").
		Edge("gate", "llm").
		Edge("llm", "out").
		Build()

	executionID, err := e.StartExecution(context.Background(), g, nil, nil)
	require.NoError(t, err)

	select {
	case <-block.started:
	case <-time.After(5 * time.Second):
		t.Fatal("gate node never started")
	}

	events, err := e.Subscribe(executionID)
	require.NoError(t, err)
	close(block.release)

	var flowStatuses []run.FlowStatus
	var chunks string
	nodeTerminal := map[string]run.NodeStatus{}
	for ev := range events {
		switch ev.Type {
		case run.EventFlowStatus:
			flowStatuses = append(flowStatuses, ev.FlowStatus)
		case run.EventNodeChunk:
			chunks += ev.Chunk
		case run.EventNodeStatus:
			if ev.NodeStatus.Terminal() {
				nodeTerminal[ev.NodeID] = ev.NodeStatus
			}
		}
	}

	assert.Contains(t, flowStatuses, run.FlowCompleted)
	assert.Equal(t, "abc", chunks)
	assert.Equal(t, run.NodeCompleted, nodeTerminal["llm"])
	assert.Equal(t, run.NodeCompleted, nodeTerminal["out"])
}

func TestEngine_UnknownExecutionID(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.GetExecutionStatus("nope")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	err = e.CancelExecution("nope")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	_, err = e.Subscribe("nope")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestEngine_StatusSnapshotDuringRun(t *testing.T) {
	block := newBlockingEvaluator()
	providers := provider.NewRegistry()
	evaluators := evaluator.NewDefaultRegistry(providers, nil)
	evaluators.Register(graph.TypeTemplate, block)

	e := New(func(o *Options) {
		o.Providers = providers
		o.Evaluators = evaluators
	})

	g := testutil.NewGraphBuilder("observed").
		Node("in", graph.InputConfig{Value: "x"}).
		Node("slow", graph.TemplateConfig{Template: "{{input}}"}).
		Node("out", graph.OutputConfig{Format: "text"}).
		Edge("in", "slow").
		Edge("slow", "out").
		Build()

	executionID, err := e.StartExecution(context.Background(), g, nil, nil)
	require.NoError(t, err)

	select {
	case <-block.started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow node never started")
	}

	snap, err := e.GetExecutionStatus(executionID)
	require.NoError(t, err)
	assert.Equal(t, run.FlowRunning, snap.Status)
	assert.Equal(t, run.NodeCompleted, nodeResult(t, snap, "in").Status)
	assert.Equal(t, run.NodeRunning, nodeResult(t, snap, "slow").Status)

	close(block.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := e.WaitForCompletion(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, run.FlowCompleted, result.Status)
	assert.Equal(t, "unblocked", result.FinalOutput)
}
