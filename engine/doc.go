// Package engine implements the flow execution core: it turns a validated
// graph into an ordered, bounded-concurrency sequence of node evaluations,
// propagates data along edges and failures to dependents, and aggregates
// per-node results into a run snapshot.
//
// Concurrency model:
//   - One dispatch goroutine per run owns all writes to the ExecutionContext
//     (single-writer); node evaluations run on worker goroutines and hand
//     their outcome back over a channel
//   - Nodes sharing no dependency edge may run concurrently, bounded by
//     Config.MaxConcurrentNodes; their relative order is unspecified
//   - Cancellation is cooperative: checked before every dispatch and, inside
//     the llm evaluator, between streamed chunks and retry attempts
//
// Error handling: node failures are contained. A failed node fails its
// transitive dependents and never escapes the run. Graph validation errors
// are raised before any node is dispatched.
package engine
