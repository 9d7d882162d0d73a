package provider

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a lightweight in-memory Provider useful for tests and
// examples. Responses are deterministic per prompt; failures can be scripted
// per call to exercise retry behavior.
type MockProvider struct {
	info      Info
	mu        sync.Mutex
	responses map[string]string
	failures  []error // consumed one per Invoke before any canned response
	calls     int
}

// NewMockProvider constructs a MockProvider with streaming enabled.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		info:      Info{Name: name, SupportsStreaming: true},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockProvider) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailWith queues errors returned by successive Invoke calls before any
// canned response is served. Queue one transient error per attempt to drive
// the engine's retry path.
func (m *MockProvider) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Calls returns how many times Invoke has been called.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Invoke implements Provider; emits optional streaming rune chunks then one
// final aggregated chunk.
func (m *MockProvider) Invoke(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls++
	var failure error
	if len(m.failures) > 0 {
		failure = m.failures[0]
		m.failures = m.failures[1:]
	}
	full, ok := m.responses[req.Prompt]
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)

		if failure != nil {
			errCh <- failure
			return
		}
		if !ok {
			full = fmt.Sprintf("Mock response to: %s", req.Prompt)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- Chunk{Partial: true, Text: string(r)}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Chunk{Text: full, FinishReason: "stop"}:
		}
	}()

	return out, errCh
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }
