package graph

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/reportgraph/core"
)

// Resolver constructs a node handler for a registry type or dynamic agent id.
// *registry.Registry satisfies it.
type Resolver interface {
	Build(typeOrID string, params map[string]any) (core.Handler, error)
}

// FromSpec resolves every node of a declarative spec through r and compiles
// the result. Unknown node types are reported as graph validation errors that
// also wrap the resolver's error.
func FromSpec(spec core.GraphSpec, r Resolver, optFns ...func(o *Options)) (*CompiledGraph, error) {
	if r == nil {
		return nil, fmt.Errorf("graph: resolver is nil")
	}

	b := NewBuilder(optFns...)

	for _, n := range spec.Nodes {
		h, err := r.Build(n.TypeName(), n.Params)
		if err != nil {
			return nil, fmt.Errorf("resolve node %q: %w: %w", n.Name, core.NewGraphValidationError("unresolved node type "+n.TypeName(), n.Name), err)
		}

		if n.Kind != 0 && h.Kind() != n.Kind {
			return nil, core.NewGraphValidationError(fmt.Sprintf("node declared as %s but type %s resolves to %s", n.Kind, n.TypeName(), h.Kind()), n.Name)
		}

		b.AddNode(n.Name, h, n.Params)
	}

	for _, e := range spec.Edges {
		b.AddEdge(e.Source, e.Target)
	}

	for _, c := range spec.ConditionalEdges {
		b.AddConditionalExpression(c.Source, c.Expression, c.Mapping)
	}

	b.SetEntry(spec.Entry).SetFinish(spec.Finish)

	g, err := b.Compile()
	if err != nil {
		return nil, err
	}

	g.spec = spec

	return g, nil
}

// LoadSpec decodes a GraphSpec from YAML or JSON.
func LoadSpec(r io.Reader) (core.GraphSpec, error) {
	var spec core.GraphSpec

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&spec); err != nil {
		return core.GraphSpec{}, fmt.Errorf("decode graph spec: %w", err)
	}

	return spec, nil
}

// LoadSpecFile reads a GraphSpec from a YAML or JSON file.
func LoadSpecFile(path string) (core.GraphSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.GraphSpec{}, fmt.Errorf("open graph spec: %w", err)
	}
	defer f.Close()

	return LoadSpec(f)
}
