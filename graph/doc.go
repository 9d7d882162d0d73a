// Package graph defines the immutable flow model executed by the engine:
// typed nodes, directed edges and flow scoped variables. It provides:
//
//   - A closed set of per-type node configurations (Config variants) so
//     evaluators can be matched exhaustively and fields are statically checked
//   - JSON (de)serialization matching the editor's wire format
//   - Pure dependency queries (DependenciesOf / DependentsOf)
//   - Structural validation: dangling edges, duplicate edges, per-type
//     required fields and cycle detection
//
// A Graph is handed to the engine read-only; nothing in this package mutates
// it after construction.
package graph
