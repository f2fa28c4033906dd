// Package graph builds, validates and compiles workflow graphs.
//
// A Builder collects node, edge and conditional-edge declarations. Handlers
// are one of the core handler variants (StateFunc, AgentFunc, ToolFunc), so
// the call shape of every node is known at AddNode time. Compile rejects
// undeclared endpoints, a missing entry point and any cycle, and returns a
// CompiledGraph whose ExecuteNode method is the uniform node adapter used by
// the engine.
//
//	g, err := graph.NewBuilder().
//	    AddNode("fetch", fetch, nil).
//	    AddNode("aging", aging, map[string]any{"as_of_date": "2024-06-30"}).
//	    AddEdge("fetch", "aging").
//	    SetEntry("fetch").
//	    Compile()
//
// FromSpec compiles a declarative core.GraphSpec by resolving node types
// through a Resolver such as the node registry, and Key derives the
// order-insensitive content hash used to cache compiled graphs.
package graph
