// Package binder resolves {{variable}} placeholders in node configuration
// strings against a run's data: named upstream outputs first, then flow
// variables, then the run's initial input. Resolution is pure and
// deterministic; unresolved placeholders are left verbatim and surfaced as
// non-fatal warnings on the consuming node's result.
package binder
