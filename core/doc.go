// Package core provides the foundational domain types and interfaces shared by
// every reportgraph package. It defines:
//
//   - Graph declarations (NodeSpec, EdgeSpec, ConditionalEdgeSpec, GraphSpec)
//   - Node handlers as a tagged variant keyed by NodeKind
//   - ExecutionState (shared data plus execution history of one run)
//   - Sessions and their lifecycle (Planned, Running, Completed, Failed)
//   - The error taxonomy (validation, node execution, not found)
//   - The CheckpointStore interface for persisting state between nodes
//
// Implementation concerns (compilation, orchestration, persistence) live in
// the graph, engine, session and checkpoint packages.
package core
