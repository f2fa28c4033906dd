package testutil

import "github.com/hupe1980/reportgraph/core"

// SpecBuilder helps construct graph specs with fluent chaining for tests.
// Example:
//
//	spec := NewSpecBuilder().Node("a", "fetch", nil).Node("b", "calc", nil).Chain("a", "b").Build()
//
// The first declared node is the entry unless Entry is called.
type SpecBuilder struct {
	spec core.GraphSpec
}

// NewSpecBuilder creates an empty builder.
func NewSpecBuilder() *SpecBuilder { return &SpecBuilder{} }

// Node declares a node (chainable).
func (b *SpecBuilder) Node(name, typ string, params map[string]any) *SpecBuilder {
	b.spec.Nodes = append(b.spec.Nodes, core.NodeSpec{Name: name, Type: typ, Params: params})
	return b
}

// Edge adds a plain edge (chainable).
func (b *SpecBuilder) Edge(source, target string) *SpecBuilder {
	b.spec.Edges = append(b.spec.Edges, core.EdgeSpec{Source: source, Target: target})
	return b
}

// Chain adds edges between consecutive names (chainable).
func (b *SpecBuilder) Chain(names ...string) *SpecBuilder {
	for i := 1; i < len(names); i++ {
		b.Edge(names[i-1], names[i])
	}

	return b
}

// Conditional adds an expression-routed edge (chainable).
func (b *SpecBuilder) Conditional(source, expression string, mapping map[string]string) *SpecBuilder {
	b.spec.ConditionalEdges = append(b.spec.ConditionalEdges, core.ConditionalEdgeSpec{
		Source:     source,
		Expression: expression,
		Mapping:    mapping,
	})

	return b
}

// Entry sets the entry node (chainable).
func (b *SpecBuilder) Entry(name string) *SpecBuilder {
	b.spec.Entry = name
	return b
}

// Finish sets the finish node (chainable).
func (b *SpecBuilder) Finish(name string) *SpecBuilder {
	b.spec.Finish = name
	return b
}

// Build returns the assembled GraphSpec.
func (b *SpecBuilder) Build() core.GraphSpec {
	spec := b.spec
	if spec.Entry == "" && len(spec.Nodes) > 0 {
		spec.Entry = spec.Nodes[0].Name
	}

	return spec
}
