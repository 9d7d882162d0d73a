// Package run holds the mutable record of a single flow execution and the
// immutable shapes exported from it:
//
//   - ExecutionContext: per-run accumulator of node results and variables,
//     written only by the engine's dispatch loop
//   - NodeExecutionResult / FlowExecutionResult: the caller-facing contract,
//     field names and status strings fixed by the API
//   - Event: the observer stream fed by the engine (status transitions and
//     streamed model chunks), decoupling live-update transport from execution
//
// Snapshots taken from an ExecutionContext are deep enough copies that
// callers never observe in-flight mutation.
package run
