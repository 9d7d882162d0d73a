package run

import "time"

// EventType discriminates observer events emitted during a run.
type EventType string

const (
	// EventFlowStatus signals a run-level status transition.
	EventFlowStatus EventType = "flow_status"
	// EventNodeStatus signals a per-node status transition.
	EventNodeStatus EventType = "node_status"
	// EventNodeChunk carries one streamed model token chunk.
	EventNodeChunk EventType = "node_chunk"
)

// Event is one entry in the observer stream the engine feeds during a run.
// Subscribers (UI, log sinks) derive live display state from these; the
// engine's own state machine stays authoritative. Events are immutable after
// emission.
type Event struct {
	ID          string     `json:"id"`
	Type        EventType  `json:"type"`
	ExecutionID string     `json:"executionId"`
	NodeID      string     `json:"nodeId,omitempty"`
	FlowStatus  FlowStatus `json:"flowStatus,omitempty"`
	NodeStatus  NodeStatus `json:"nodeStatus,omitempty"`
	Chunk       string     `json:"chunk,omitempty"`
	Output      any        `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

func newEvent(t EventType, executionID string) Event {
	return Event{ID: NewID(), Type: t, ExecutionID: executionID, Timestamp: time.Now().UTC()}
}

// NewFlowStatusEvent creates a run-level status transition event.
func NewFlowStatusEvent(executionID string, status FlowStatus) Event {
	e := newEvent(EventFlowStatus, executionID)
	e.FlowStatus = status
	return e
}

// NewNodeStatusEvent creates a per-node status transition event. Output and
// errMsg are populated on terminal transitions.
func NewNodeStatusEvent(executionID, nodeID string, status NodeStatus, output any, errMsg string) Event {
	e := newEvent(EventNodeStatus, executionID)
	e.NodeID = nodeID
	e.NodeStatus = status
	e.Output = output
	e.Error = errMsg
	return e
}

// NewChunkEvent creates a streamed token chunk event for a node.
func NewChunkEvent(executionID, nodeID, chunk string) Event {
	e := newEvent(EventNodeChunk, executionID)
	e.NodeID = nodeID
	e.Chunk = chunk
	return e
}
