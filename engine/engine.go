package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethanlchristensen/flowmesh/evaluator"
	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/logging"
	"github.com/ethanlchristensen/flowmesh/provider"
	"github.com/ethanlchristensen/flowmesh/run"
)

// Config defines tuning parameters for the engine's dispatch behavior.
type Config struct {
	// MaxConcurrentNodes bounds how many node evaluations may be in flight
	// at once within a single run. Set to 0 for unlimited (not recommended).
	MaxConcurrentNodes int

	// EventBufferSize sets the per-subscriber buffer for run events. A
	// subscriber that falls behind loses events; snapshots stay complete.
	EventBufferSize int

	// NodeTimeout caps a single node evaluation, retries included. Zero
	// disables the cap.
	NodeTimeout time.Duration
}

// DefaultConfig provides conservative defaults: a handful of in-flight
// nodes, moderate event buffering, no node timeout.
var DefaultConfig = Config{
	MaxConcurrentNodes: 4,
	EventBufferSize:    100,
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters for the dispatch loop.
	Config Config

	// Providers maps provider names to model provider implementations.
	// Defaults to an empty registry; llm nodes then fail with an unknown
	// provider error.
	Providers *provider.Registry

	// Evaluators maps node types to evaluators. Defaults to the built-in
	// set wired over Providers.
	Evaluators *evaluator.Registry

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine coordinates flow executions: it validates graphs, owns the per-run
// dispatch loops and serves point-in-time snapshots. Public methods are safe
// for concurrent use.
type Engine struct {
	config     Config
	evaluators *evaluator.Registry
	logger     logging.Logger
	store      *executionStore
}

// New constructs an Engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Providers == nil {
		opts.Providers = provider.NewRegistry()
	}
	if opts.Evaluators == nil {
		opts.Evaluators = evaluator.NewDefaultRegistry(opts.Providers, opts.Logger)
	}
	return &Engine{
		config:     opts.Config,
		evaluators: opts.Evaluators,
		logger:     opts.Logger,
		store:      newExecutionStore(),
	}
}

// StartExecution validates g and, if valid, starts an asynchronous run with
// the given initial input and run-level variable overrides. It returns the
// new execution id immediately; progress is observed via
// GetExecutionStatus or Subscribe. A graph that fails validation returns
// graph.ValidationErrors and dispatches nothing.
func (e *Engine) StartExecution(ctx context.Context, g *graph.Graph, initialInput, variables map[string]any) (string, error) {
	vr := g.Validate()
	if err := vr.Err(); err != nil {
		return "", err
	}
	for _, w := range vr.Warnings {
		e.logger.Warn("graph validation warning", "flow_id", g.ID, "warning", w)
	}

	merged := make(map[string]any, len(g.Variables)+len(variables))
	for k, v := range g.Variables {
		merged[k] = v
	}
	for k, v := range variables {
		merged[k] = v
	}

	exec := run.NewExecutionContext(g.ID, merged, initialInput)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar := &activeRun{
		exec:   exec,
		graph:  g,
		cancel: cancel,
		events: newBroadcaster(e.config.EventBufferSize, e.logger),
		done:   make(chan struct{}),
	}
	e.store.Add(ar)

	s := newScheduler(e, ar)
	go func() {
		defer close(ar.done)
		defer cancel()
		s.run(runCtx)
	}()

	e.logger.Info("execution started", "flow_id", g.ID, "execution_id", exec.ExecutionID(), "node_count", len(g.Nodes))
	return exec.ExecutionID(), nil
}

// CancelExecution requests cooperative termination of a run. Nodes already
// running are asked to abort; nodes still pending are recorded as failed
// due to cancellation. Idempotent for runs that already finished.
func (e *Engine) CancelExecution(executionID string) error {
	ar, ok := e.store.Get(executionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	ar.exec.MarkCancelled()
	ar.cancel()
	e.logger.Info("execution cancel requested", "execution_id", executionID)
	return nil
}

// GetExecutionStatus returns a point-in-time snapshot of a run. Repeated
// calls during a running execution return progressively more complete
// snapshots.
func (e *Engine) GetExecutionStatus(executionID string) (*run.FlowExecutionResult, error) {
	ar, ok := e.store.Get(executionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return ar.exec.Snapshot(), nil
}

// Subscribe returns an ordered stream of run events (status transitions and
// streamed model chunks). The channel is closed when the run finishes.
// Events emitted before subscription are not replayed.
func (e *Engine) Subscribe(executionID string) (<-chan run.Event, error) {
	ar, ok := e.store.Get(executionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return ar.events.Subscribe(), nil
}

// WaitForCompletion blocks until the run reaches a terminal status or ctx
// is done, then returns the final snapshot.
func (e *Engine) WaitForCompletion(ctx context.Context, executionID string) (*run.FlowExecutionResult, error) {
	ar, ok := e.store.Get(executionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ar.done:
		return ar.exec.Snapshot(), nil
	}
}
