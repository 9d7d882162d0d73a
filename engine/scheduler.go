package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethanlchristensen/flowmesh/binder"
	"github.com/ethanlchristensen/flowmesh/evaluator"
	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/logging"
	"github.com/ethanlchristensen/flowmesh/run"
)

type readiness int

const (
	notReady readiness = iota
	ready
	upstreamFailed
)

// nodeOutcome is one finished evaluation delivered back to the dispatch
// loop. Exactly one of result and err is set.
type nodeOutcome struct {
	node   graph.Node
	input  any
	start  time.Time
	result *evaluator.Result
	err    error
}

// scheduler runs one execution's dispatch loop. It is the single writer of
// the execution context: worker goroutines evaluate nodes and report
// outcomes over a channel, the loop records them and advances readiness.
type scheduler struct {
	engine *Engine
	ar     *activeRun
	exec   *run.ExecutionContext
	graph  *graph.Graph
	logger logging.Logger
}

func newScheduler(e *Engine, ar *activeRun) *scheduler {
	return &scheduler{
		engine: e,
		ar:     ar,
		exec:   ar.exec,
		graph:  ar.graph,
		logger: e.logger,
	}
}

func (s *scheduler) run(ctx context.Context) {
	s.exec.SetStatus(run.FlowRunning)
	s.publishFlowStatus(run.FlowRunning)

	pending := make(map[string]graph.Node, len(s.graph.Nodes))
	for _, n := range s.graph.Nodes {
		pending[n.ID] = n
	}
	outcomes := make(chan nodeOutcome, len(s.graph.Nodes))
	inFlight := 0
	cancelled := false

	for {
		if cancelled || ctx.Err() != nil || s.exec.Cancelled() {
			cancelled = true
			for _, n := range s.graph.Nodes {
				if _, ok := pending[n.ID]; !ok {
					continue
				}
				s.recordCancelled(n)
				delete(pending, n.ID)
			}
		} else {
			s.advance(ctx, pending, &inFlight, outcomes)
		}

		if inFlight == 0 {
			if len(pending) == 0 || cancelled {
				break
			}
			// Unreachable for validated graphs; a pending node with no
			// in-flight dependency means the graph changed underneath us.
			s.logger.Error("dispatch stalled with pending nodes", "execution_id", s.exec.ExecutionID(), "pending", len(pending))
			break
		}

		if cancelled {
			out := <-outcomes
			inFlight--
			s.record(out)
			continue
		}
		select {
		case out := <-outcomes:
			inFlight--
			s.record(out)
		case <-ctx.Done():
			cancelled = true
		}
	}

	s.finish()
}

// advance sweeps pending nodes in declaration order, recording propagated
// failures and dispatching ready nodes up to the concurrency bound. It
// repeats until a sweep makes no progress, so failure chains collapse in a
// single call.
func (s *scheduler) advance(ctx context.Context, pending map[string]graph.Node, inFlight *int, outcomes chan<- nodeOutcome) {
	for progressed := true; progressed; {
		progressed = false
		for _, n := range s.graph.Nodes {
			node, ok := pending[n.ID]
			if !ok {
				continue
			}
			state, failedDep := s.readinessOf(node.ID)
			switch state {
			case upstreamFailed:
				s.recordPropagated(node, failedDep)
				delete(pending, node.ID)
				progressed = true
			case ready:
				if max := s.engine.config.MaxConcurrentNodes; max > 0 && *inFlight >= max {
					continue
				}
				s.dispatch(ctx, node, outcomes)
				delete(pending, node.ID)
				*inFlight++
			}
		}
	}
}

// readinessOf applies the readiness rule: a node is ready when every
// dependency completed, and fails by propagation as soon as any dependency
// failed. The second return is the first failed dependency id.
func (s *scheduler) readinessOf(nodeID string) (readiness, string) {
	for _, dep := range s.graph.DependenciesOf(nodeID) {
		switch s.exec.NodeStatus(dep) {
		case run.NodeFailed:
			return upstreamFailed, dep
		case run.NodeCompleted:
		default:
			return notReady, ""
		}
	}
	return ready, ""
}

// dispatch marks the node running and evaluates it on a worker goroutine.
// The worker's only side channel back is the outcomes channel.
func (s *scheduler) dispatch(ctx context.Context, node graph.Node, outcomes chan<- nodeOutcome) {
	req := s.buildRequest(node)
	input := req.Named["input"]
	start := time.Now().UTC()

	s.exec.MarkRunning(node.ID, string(node.Type), input)
	s.publishNodeStatus(node.ID, run.NodeRunning, nil, "")
	s.logger.Debug("node dispatched", "execution_id", s.exec.ExecutionID(), "node_id", node.ID, "node_type", string(node.Type))

	ev, evErr := s.engine.evaluators.Get(node.Type)

	go func() {
		out := nodeOutcome{node: node, input: input, start: start}
		if evErr != nil {
			out.err = evErr
			outcomes <- out
			return
		}

		nodeCtx := ctx
		if timeout := s.engine.config.NodeTimeout; timeout > 0 {
			var cancel context.CancelFunc
			nodeCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		res, err := ev.Evaluate(nodeCtx, req)
		if err != nil && nodeCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("node timed out after %s: %w", s.engine.config.NodeTimeout, context.DeadlineExceeded)
		}
		out.result = res
		out.err = err
		outcomes <- out
	}()
}

// buildRequest resolves the node's upstream values into an evaluator
// request. Named carries every alias a template may reference: the output
// variable name of upstream input nodes, the edge's target handle, the
// source node id and the canonical "input" (the single upstream value, or
// all values joined as text when there are several).
func (s *scheduler) buildRequest(node graph.Node) *evaluator.Request {
	edges := s.graph.EdgesInto(node.ID)
	inputs := make([]evaluator.NodeInput, 0, len(edges))
	named := make(map[string]any)

	for _, edge := range edges {
		res, ok := s.exec.Result(edge.Source)
		if !ok || res.Status != run.NodeCompleted {
			continue
		}
		inputs = append(inputs, evaluator.NodeInput{
			SourceID: edge.Source,
			Handle:   edge.TargetHandle,
			Value:    res.Output,
		})
		if src, ok := s.graph.Node(edge.Source); ok {
			if cfg, ok := src.Config.(graph.InputConfig); ok && cfg.VariableName != "" {
				named[cfg.VariableName] = res.Output
			}
		}
		if edge.TargetHandle != "" {
			named[edge.TargetHandle] = res.Output
		}
		named[edge.Source] = res.Output
	}

	switch len(inputs) {
	case 0:
	case 1:
		named["input"] = inputs[0].Value
	default:
		parts := make([]string, 0, len(inputs))
		for _, in := range inputs {
			parts = append(parts, binder.Stringify(in.Value))
		}
		named["input"] = strings.Join(parts, "\n")
	}

	return &evaluator.Request{
		Node:         node,
		Inputs:       inputs,
		Named:        named,
		Variables:    s.exec.Variables(),
		InitialInput: s.exec.InitialInput(),
		OnChunk: func(chunk string) {
			s.ar.events.Publish(run.NewChunkEvent(s.exec.ExecutionID(), node.ID, chunk))
		},
	}
}

// record writes one outcome's terminal result and publishes its status
// event. Runs on the dispatch goroutine only.
func (s *scheduler) record(out nodeOutcome) {
	now := time.Now().UTC()
	res := &run.NodeExecutionResult{
		NodeID:        out.node.ID,
		NodeType:      string(out.node.Type),
		Input:         out.input,
		StartTime:     out.start,
		EndTime:       &now,
		ExecutionTime: now.Sub(out.start).Milliseconds(),
	}

	if out.err != nil {
		res.Status = run.NodeFailed
		res.Error = errorDetail(out.err)
		s.exec.RecordResult(res)
		s.publishNodeStatus(out.node.ID, run.NodeFailed, nil, res.Error.Message)
		s.logger.Warn("node failed", "execution_id", s.exec.ExecutionID(), "node_id", out.node.ID, "code", res.Error.Code, "error", res.Error.Message)
		return
	}

	res.Status = run.NodeCompleted
	res.Output = out.result.Output
	res.Warnings = out.result.Warnings
	res.Metadata = out.result.Meta
	if out.result.Input != nil {
		res.Input = out.result.Input
	}
	s.exec.RecordResult(res)
	s.publishNodeStatus(out.node.ID, run.NodeCompleted, out.result.Output, "")
	s.logger.Debug("node completed", "execution_id", s.exec.ExecutionID(), "node_id", out.node.ID, "duration_ms", res.ExecutionTime)
}

// recordPropagated fails a node because one of its dependencies failed. The
// node's evaluator is never invoked.
func (s *scheduler) recordPropagated(node graph.Node, failedDep string) {
	now := time.Now().UTC()
	detail := &run.ErrorDetail{
		Message: fmt.Sprintf("dependency %s failed", failedDep),
		Code:    run.ErrCodeUpstreamFailed,
		Details: map[string]any{"failedDependency": failedDep},
	}
	s.exec.RecordResult(&run.NodeExecutionResult{
		NodeID:    node.ID,
		NodeType:  string(node.Type),
		Status:    run.NodeFailed,
		Error:     detail,
		StartTime: now,
		EndTime:   &now,
	})
	s.publishNodeStatus(node.ID, run.NodeFailed, nil, detail.Message)
}

// recordCancelled fails a node that never ran because the run was cancelled.
func (s *scheduler) recordCancelled(node graph.Node) {
	now := time.Now().UTC()
	detail := &run.ErrorDetail{
		Message: "execution cancelled before node ran",
		Code:    run.ErrCodeCancelled,
	}
	s.exec.RecordResult(&run.NodeExecutionResult{
		NodeID:    node.ID,
		NodeType:  string(node.Type),
		Status:    run.NodeFailed,
		Error:     detail,
		StartTime: now,
		EndTime:   &now,
	})
	s.publishNodeStatus(node.ID, run.NodeFailed, nil, detail.Message)
}

// finish settles the run: final output selection, terminal status, run
// level error, then event stream closure.
//
// The run completes as long as at least one output node completed, even if
// other branches failed; it fails only when no output node produced a
// result. FinalOutput is the latest completing completed output node.
func (s *scheduler) finish() {
	snap := s.exec.Snapshot()

	anyFailed := false
	var firstFailed *run.NodeExecutionResult
	var lastOutput *run.NodeExecutionResult
	for i := range snap.NodeResults {
		nr := &snap.NodeResults[i]
		switch nr.Status {
		case run.NodeFailed:
			anyFailed = true
			if firstFailed == nil {
				firstFailed = nr
			}
		case run.NodeCompleted:
			if nr.NodeType == string(graph.TypeOutput) {
				lastOutput = nr
			}
		}
	}

	var status run.FlowStatus
	switch {
	case s.exec.Cancelled():
		status = run.FlowCancelled
		s.exec.SetError(&run.ErrorDetail{Message: "execution cancelled", Code: run.ErrCodeCancelled})
	case anyFailed && lastOutput == nil:
		status = run.FlowFailed
		detail := run.ErrorDetail{
			Message: fmt.Sprintf("node %s failed: %s", firstFailed.NodeID, firstFailed.Error.Message),
			Code:    firstFailed.Error.Code,
			Details: map[string]any{"nodeId": firstFailed.NodeID},
		}
		for k, v := range firstFailed.Error.Details {
			detail.Details[k] = v
		}
		s.exec.SetError(&detail)
	default:
		status = run.FlowCompleted
	}

	if lastOutput != nil {
		s.exec.SetFinalOutput(lastOutput.Output)
	}

	s.exec.Finish(status)
	s.publishFlowStatus(status)
	s.ar.events.Close()
	s.logger.Info("execution finished", "execution_id", s.exec.ExecutionID(), "flow_id", s.exec.FlowID(), "status", string(status))
}

func (s *scheduler) publishFlowStatus(status run.FlowStatus) {
	s.ar.events.Publish(run.NewFlowStatusEvent(s.exec.ExecutionID(), status))
}

func (s *scheduler) publishNodeStatus(nodeID string, status run.NodeStatus, output any, errMsg string) {
	s.ar.events.Publish(run.NewNodeStatusEvent(s.exec.ExecutionID(), nodeID, status, output, errMsg))
}

// errorDetail maps an evaluation error to its caller-facing record.
func errorDetail(err error) *run.ErrorDetail {
	if errors.Is(err, context.DeadlineExceeded) {
		return &run.ErrorDetail{Message: err.Error(), Code: run.ErrCodeTimeout}
	}
	if errors.Is(err, context.Canceled) {
		return &run.ErrorDetail{Message: "node aborted by cancellation", Code: run.ErrCodeCancelled}
	}

	var evalErr *evaluator.Error
	if errors.As(err, &evalErr) {
		code := run.ErrCodeEvaluator
		switch evalErr.Code {
		case "provider_error", "retries_exhausted", "unknown_provider":
			code = run.ErrCodeProvider
		case "cancelled":
			code = run.ErrCodeCancelled
		}
		details := map[string]any{"reason": evalErr.Code}
		for k, v := range evalErr.Details {
			details[k] = v
		}
		return &run.ErrorDetail{Message: evalErr.Message, Code: code, Details: details}
	}

	return &run.ErrorDetail{Message: err.Error(), Code: run.ErrCodeEvaluator}
}
