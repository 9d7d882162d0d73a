package engine

import (
	"context"
	"sync"

	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/run"
)

// activeRun bundles everything the engine tracks for one execution: the
// mutable context, the (read-only) graph, the cancel handle for cooperative
// abort, the event fan-out and a done channel closed on termination.
type activeRun struct {
	exec   *run.ExecutionContext
	graph  *graph.Graph
	cancel context.CancelFunc
	events *broadcaster
	done   chan struct{}
}

// executionStore is a process-local registry of runs keyed by execution id.
// Finished runs stay resident so status queries keep working for the life of
// the engine; history is not persisted anywhere else.
type executionStore struct {
	mu   sync.RWMutex
	runs map[string]*activeRun
}

func newExecutionStore() *executionStore {
	return &executionStore{runs: make(map[string]*activeRun)}
}

// Add registers a run under its execution id.
func (s *executionStore) Add(ar *activeRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[ar.exec.ExecutionID()] = ar
}

// Get returns the run for an execution id.
func (s *executionStore) Get(executionID string) (*activeRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ar, ok := s.runs[executionID]
	return ar, ok
}
