package run

import "time"

// NodeStatus is the engine's authoritative per-node state. Any visual layer
// derives its display state from these values, never the reverse.
type NodeStatus string

const (
	// NodePending means the node has not been dispatched yet.
	NodePending NodeStatus = "pending"
	// NodeRunning means the node's evaluator is currently executing.
	NodeRunning NodeStatus = "running"
	// NodeCompleted means the node produced a successful result.
	NodeCompleted NodeStatus = "completed"
	// NodeFailed means the node failed, either in its own evaluator or
	// because an upstream dependency failed.
	NodeFailed NodeStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s NodeStatus) Terminal() bool { return s == NodeCompleted || s == NodeFailed }

// FlowStatus is the overall state of one execution.
type FlowStatus string

const (
	// FlowPending means the run is registered but not yet started.
	FlowPending FlowStatus = "pending"
	// FlowRunning means at least one node is still non-terminal.
	FlowRunning FlowStatus = "running"
	// FlowCompleted means the run finished with a successful output path.
	FlowCompleted FlowStatus = "completed"
	// FlowFailed means the run finished without any successful output path.
	FlowFailed FlowStatus = "failed"
	// FlowCancelled means the caller aborted the run before completion.
	FlowCancelled FlowStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s FlowStatus) Terminal() bool {
	return s == FlowCompleted || s == FlowFailed || s == FlowCancelled
}

// Error codes attached to node failure records. These are part of the caller
// contract alongside the status strings.
const (
	// ErrCodeUpstreamFailed marks a propagated failure; details carry the
	// failing upstream node id under "failedDependency".
	ErrCodeUpstreamFailed = "UPSTREAM_FAILED"
	// ErrCodeCancelled marks a node failed because the run was cancelled.
	ErrCodeCancelled = "CANCELLED"
	// ErrCodeEvaluator marks a failure raised by the node's own evaluator.
	ErrCodeEvaluator = "EVALUATOR_ERROR"
	// ErrCodeProvider marks a model provider failure after retries, if any.
	ErrCodeProvider = "PROVIDER_ERROR"
	// ErrCodeTimeout marks a node that exceeded the engine's node timeout.
	ErrCodeTimeout = "TIMEOUT"
)

// ErrorDetail is the wire form of a failure. Message is always human
// readable; Details pinpoints causes (e.g. the upstream node id for
// propagated failures) without requiring log access.
type ErrorDetail struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NodeExecutionResult records one node's evaluation within a run.
// ExecutionTime is milliseconds (EndTime minus StartTime).
type NodeExecutionResult struct {
	NodeID        string         `json:"nodeId"`
	NodeType      string         `json:"nodeType"`
	Status        NodeStatus     `json:"status"`
	Input         any            `json:"input,omitempty"`
	Output        any            `json:"output,omitempty"`
	Error         *ErrorDetail   `json:"error,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	ExecutionTime int64          `json:"executionTime,omitempty"`
}

// FlowExecutionResult is the point-in-time snapshot of a run. NodeResults is
// ordered by completion, not by graph order. FinalOutput holds the output
// node's value once the run completes.
type FlowExecutionResult struct {
	ExecutionID        string                `json:"executionId"`
	FlowID             string                `json:"flowId"`
	Status             FlowStatus            `json:"status"`
	StartTime          time.Time             `json:"startTime"`
	EndTime            *time.Time            `json:"endTime,omitempty"`
	TotalExecutionTime int64                 `json:"totalExecutionTime,omitempty"`
	NodeResults        []NodeExecutionResult `json:"nodeResults"`
	FinalOutput        any                   `json:"finalOutput,omitempty"`
	Error              *ErrorDetail          `json:"error,omitempty"`
}
