// Package evaluator implements the per-type node logic of the engine. Each
// node kind (input, llm, json_extractor, output, template, merge,
// text_transformer) has one Evaluator that consumes resolved inputs and
// produces a typed result or a typed failure. Evaluators are pure with
// respect to the execution context: they return results to the engine and
// never mutate shared state.
//
// A Registry maps node types to evaluators so the engine can dispatch
// without per-type branching; tests swap in spies the same way.
package evaluator
