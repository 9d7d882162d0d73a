// Package flowmesh provides a high-level façade over the core Engine for
// executing flows: directed graphs of typed nodes (inputs, model calls, JSON
// extraction, transformations, outputs). Most applications interact with
// this package by:
//  1. Creating a FlowMesh via New() (optionally overriding providers, config, logger)
//  2. Parsing or constructing a graph.Graph
//  3. Starting executions asynchronously (StartExecution) or running them to
//     completion (RunSync)
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. Defaults are safe for local development and
// testing; production deployments typically register real model providers
// and supply a structured logger.
package flowmesh

import (
	"context"

	"github.com/ethanlchristensen/flowmesh/engine"
	"github.com/ethanlchristensen/flowmesh/evaluator"
	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/logging"
	"github.com/ethanlchristensen/flowmesh/provider"
	"github.com/ethanlchristensen/flowmesh/run"
)

// Options configures the FlowMesh instance.
type Options struct {
	// EngineConfig holds concurrency, buffering and timeout settings.
	EngineConfig engine.Config

	// Providers maps provider names to model providers. Defaults to an
	// empty registry; register providers before running flows with llm
	// nodes.
	Providers *provider.Registry

	// Evaluators overrides the node evaluator set. Defaults to the
	// built-in evaluators wired over Providers.
	Evaluators *evaluator.Registry

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// FlowMesh is the high-level façade aggregating the engine and its provider
// registry.
type FlowMesh struct {
	opts      Options
	providers *provider.Registry
	engine    *engine.Engine
}

// New creates a new FlowMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *FlowMesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Providers:    provider.NewRegistry(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Providers = opts.Providers
		o.Evaluators = opts.Evaluators
		o.Logger = opts.Logger
	})

	return &FlowMesh{opts: opts, providers: opts.Providers, engine: e}
}

// RegisterProvider adds a model provider under the given name.
func (m *FlowMesh) RegisterProvider(name string, p provider.Provider) {
	m.providers.Register(name, p)
}

// StartExecution validates g and starts an asynchronous run, returning its
// execution id. Progress is observed via GetExecutionStatus or Subscribe.
func (m *FlowMesh) StartExecution(ctx context.Context, g *graph.Graph, initialInput, variables map[string]any) (string, error) {
	return m.engine.StartExecution(ctx, g, initialInput, variables)
}

// CancelExecution requests cooperative termination of a run.
func (m *FlowMesh) CancelExecution(executionID string) error {
	return m.engine.CancelExecution(executionID)
}

// GetExecutionStatus returns a point-in-time snapshot of a run.
func (m *FlowMesh) GetExecutionStatus(executionID string) (*run.FlowExecutionResult, error) {
	return m.engine.GetExecutionStatus(executionID)
}

// Subscribe returns the run's event stream. The channel closes when the run
// reaches a terminal status.
func (m *FlowMesh) Subscribe(executionID string) (<-chan run.Event, error) {
	return m.engine.Subscribe(executionID)
}

// RunSync is a synchronous helper: it starts an execution and blocks until
// the run finishes or ctx is done, returning the final snapshot.
func (m *FlowMesh) RunSync(ctx context.Context, g *graph.Graph, initialInput, variables map[string]any) (*run.FlowExecutionResult, error) {
	executionID, err := m.engine.StartExecution(ctx, g, initialInput, variables)
	if err != nil {
		return nil, err
	}
	return m.engine.WaitForCompletion(ctx, executionID)
}
