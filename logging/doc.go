// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug in
// any structured logger. It also offers a richer FlowLogger with contextual
// helpers (flow, execution, node) and domain specific logging helpers for
// node evaluations, model calls and whole flow runs.
package logging
