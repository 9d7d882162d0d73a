package engine

import (
	"sync"

	"github.com/ethanlchristensen/flowmesh/logging"
	"github.com/ethanlchristensen/flowmesh/run"
)

// broadcaster fans run events out to subscribers. Publishing never blocks
// the dispatch loop: a subscriber that falls behind its buffer loses events
// (snapshots remain the complete record).
type broadcaster struct {
	mu     sync.Mutex
	subs   []chan run.Event
	closed bool
	buffer int
	logger logging.Logger
}

func newBroadcaster(buffer int, logger logging.Logger) *broadcaster {
	if buffer <= 0 {
		buffer = 1
	}
	return &broadcaster{buffer: buffer, logger: logger}
}

// Subscribe registers a new subscriber channel. The channel is closed when
// the run finishes.
func (b *broadcaster) Subscribe() <-chan run.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan run.Event, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers ev to every subscriber without blocking.
func (b *broadcaster) Publish(ev run.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber", "event_type", string(ev.Type), "execution_id", ev.ExecutionID)
		}
	}
}

// Close closes all subscriber channels. Further publishes are no-ops.
func (b *broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
