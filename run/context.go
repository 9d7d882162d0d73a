package run

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewID generates a unique identifier for executions and events.
func NewID() string { return uuid.NewString() }

// ExecutionContext is the mutable record of a single run. It is written
// exclusively by the engine's dispatch loop; evaluators return results, they
// never touch the context. Reads (snapshots, readiness checks) may come from
// other goroutines, so access is guarded internally.
//
// Terminal node results are kept in completion order; nodes currently
// running are tracked separately so snapshots can show them without
// disturbing that order.
type ExecutionContext struct {
	mu sync.RWMutex

	flowID      string
	executionID string

	variables    map[string]any
	initialInput map[string]any

	status      FlowStatus
	startTime   time.Time
	endTime     *time.Time
	finalOutput any
	runErr      *ErrorDetail
	cancelled   bool

	results map[string]*NodeExecutionResult // terminal results only
	order   []string                        // completion order of terminal results
	running map[string]*NodeExecutionResult // dispatched, not yet terminal
}

// NewExecutionContext creates a pending context for one run. Flow variables
// and the caller's initial input are copied so the graph's maps stay unshared.
func NewExecutionContext(flowID string, variables, initialInput map[string]any) *ExecutionContext {
	return &ExecutionContext{
		flowID:       flowID,
		executionID:  NewID(),
		variables:    copyMap(variables),
		initialInput: copyMap(initialInput),
		status:       FlowPending,
		startTime:    time.Now().UTC(),
		results:      make(map[string]*NodeExecutionResult),
		running:      make(map[string]*NodeExecutionResult),
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ExecutionID returns the run's unique identifier.
func (c *ExecutionContext) ExecutionID() string { return c.executionID }

// FlowID returns the id of the graph being executed.
func (c *ExecutionContext) FlowID() string { return c.flowID }

// StartTime returns when the run was created.
func (c *ExecutionContext) StartTime() time.Time { return c.startTime }

// Variables returns a copy of the run's flow variables.
func (c *ExecutionContext) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyMap(c.variables)
}

// InitialInput returns a copy of the caller supplied initial input.
func (c *ExecutionContext) InitialInput() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyMap(c.initialInput)
}

// Status returns the run's current status.
func (c *ExecutionContext) Status() FlowStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus transitions the run's status.
func (c *ExecutionContext) SetStatus(s FlowStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// MarkCancelled raises the run's cooperative cancellation flag.
func (c *ExecutionContext) MarkCancelled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

// Cancelled reports whether cancellation has been requested.
func (c *ExecutionContext) Cancelled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelled
}

// MarkRunning records that a node has been dispatched to its evaluator.
func (c *ExecutionContext) MarkRunning(nodeID, nodeType string, input any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[nodeID] = &NodeExecutionResult{
		NodeID:    nodeID,
		NodeType:  nodeType,
		Status:    NodeRunning,
		Input:     input,
		StartTime: time.Now().UTC(),
	}
}

// RecordResult writes a node's terminal result. The write fixes the node's
// position in completion order; a node can only be recorded once.
func (c *ExecutionContext) RecordResult(res *NodeExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, res.NodeID)
	if _, exists := c.results[res.NodeID]; !exists {
		c.order = append(c.order, res.NodeID)
	}
	c.results[res.NodeID] = res
}

// Result returns the recorded terminal result for a node id, if any.
func (c *ExecutionContext) Result(nodeID string) (*NodeExecutionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[nodeID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// NodeStatus returns the authoritative status for a node: a terminal status
// if recorded, running if dispatched, pending otherwise.
func (c *ExecutionContext) NodeStatus(nodeID string) NodeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.results[nodeID]; ok {
		return r.Status
	}
	if _, ok := c.running[nodeID]; ok {
		return NodeRunning
	}
	return NodePending
}

// SetFinalOutput records the run's final output value.
func (c *ExecutionContext) SetFinalOutput(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalOutput = v
}

// SetError records the run-level error reported when the run fails.
func (c *ExecutionContext) SetError(e *ErrorDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runErr = e
}

// Finish stamps the end time and terminal status.
func (c *ExecutionContext) Finish(status FlowStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	c.status = status
	c.endTime = &now
}

// Snapshot exports the context as an immutable FlowExecutionResult. Terminal
// node results appear in completion order, followed by any still-running
// nodes. The returned value shares nothing mutable with the context.
func (c *ExecutionContext) Snapshot() *FlowExecutionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := &FlowExecutionResult{
		ExecutionID: c.executionID,
		FlowID:      c.flowID,
		Status:      c.status,
		StartTime:   c.startTime,
		FinalOutput: c.finalOutput,
	}
	if c.endTime != nil {
		end := *c.endTime
		res.EndTime = &end
		res.TotalExecutionTime = end.Sub(c.startTime).Milliseconds()
	}
	if c.runErr != nil {
		e := *c.runErr
		res.Error = &e
	}
	res.NodeResults = make([]NodeExecutionResult, 0, len(c.order)+len(c.running))
	for _, id := range c.order {
		res.NodeResults = append(res.NodeResults, *c.results[id])
	}
	for _, r := range c.running {
		res.NodeResults = append(res.NodeResults, *r)
	}
	return res
}
