// Package registry maps node type names and dynamic agent ids to handler
// constructors.
//
// Static node types are registered with RegisterNode and a Metadata record
// whose capabilities feed an inverted index, so planners can ask which types
// can do "reporting" or "calculation". Dynamic agents are created from an
// agent.Config at runtime and receive generated ids. A *Registry satisfies
// graph.Resolver and is what the engine uses to turn a declarative graph spec
// into handlers.
package registry
