package graph

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/logging"
)

// End is the conditional-edge target that terminates the current branch.
const End = "__end__"

// Options configures a Builder.
type Options struct {
	// Logger receives node lifecycle events. Defaults to NoOpLogger.
	Logger logging.Logger
}

type node struct {
	name        string
	handler     core.Handler
	params      map[string]any
	onError     core.ErrorHandler
	stateUpdate core.StateUpdateFunc
}

type conditional struct {
	source     string
	predicate  core.Predicate
	expression string
	mapping    map[string]string
}

// Builder accumulates node, edge and conditional-edge declarations and
// compiles them into a CompiledGraph. Declaration mistakes are collected and
// reported by Compile so calls can be chained.
type Builder struct {
	opts        Options
	nodes       map[string]*node
	order       []string
	edges       []core.EdgeSpec
	conditional map[string]*conditional
	condOrder   []string
	entry       string
	finish      string
	errs        []string
}

// NewBuilder creates an empty Builder.
func NewBuilder(optFns ...func(o *Options)) *Builder {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Builder{
		opts:        opts,
		nodes:       make(map[string]*node),
		conditional: make(map[string]*conditional),
	}
}

// AddNode declares a node. The node kind is taken from the handler type.
func (b *Builder) AddNode(name string, handler core.Handler, params map[string]any) *Builder {
	switch {
	case name == "":
		b.errs = append(b.errs, "node name is empty")
		return b
	case name == End:
		b.errs = append(b.errs, fmt.Sprintf("node name %q is reserved", End))
		return b
	case handler == nil:
		b.errs = append(b.errs, fmt.Sprintf("node %q has no handler", name))
		return b
	}

	if _, dup := b.nodes[name]; dup {
		b.errs = append(b.errs, fmt.Sprintf("duplicate node %q", name))
		return b
	}

	if params == nil {
		params = map[string]any{}
	}

	b.nodes[name] = &node{name: name, handler: handler, params: params}
	b.order = append(b.order, name)

	b.opts.Logger.Debug("graph.node.added", "node", name, "kind", handler.Kind().String())

	return b
}

// AddEdge declares an unconditional transition.
func (b *Builder) AddEdge(source, target string) *Builder {
	b.edges = append(b.edges, core.EdgeSpec{Source: source, Target: target})
	return b
}

// AddConditionalEdge routes from source to mapping[fmt.Sprint(predicate(state))].
// A node may carry at most one conditional edge.
func (b *Builder) AddConditionalEdge(source string, predicate core.Predicate, mapping map[string]string) *Builder {
	if predicate == nil {
		b.errs = append(b.errs, fmt.Sprintf("conditional edge from %q has no predicate", source))
		return b
	}

	return b.addConditional(&conditional{source: source, predicate: predicate, mapping: mapping})
}

// AddConditionalExpression is AddConditionalEdge with a govaluate expression
// evaluated against the shared data, e.g. `total_outstanding > 0`.
func (b *Builder) AddConditionalExpression(source, expression string, mapping map[string]string) *Builder {
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		b.errs = append(b.errs, fmt.Sprintf("conditional edge from %q: invalid expression %q: %v", source, expression, err))
		return b
	}

	predicate := func(state *core.ExecutionState) (any, error) {
		return expr.Evaluate(state.Snapshot())
	}

	return b.addConditional(&conditional{source: source, predicate: predicate, expression: expression, mapping: mapping})
}

func (b *Builder) addConditional(c *conditional) *Builder {
	if _, dup := b.conditional[c.source]; dup {
		b.errs = append(b.errs, fmt.Sprintf("node %q already has a conditional edge", c.source))
		return b
	}

	if len(c.mapping) == 0 {
		b.errs = append(b.errs, fmt.Sprintf("conditional edge from %q has an empty mapping", c.source))
		return b
	}

	mapping := make(map[string]string, len(c.mapping))
	for k, v := range c.mapping {
		mapping[k] = v
	}

	c.mapping = mapping
	b.conditional[c.source] = c
	b.condOrder = append(b.condOrder, c.source)

	return b
}

// SetEntry sets the node the walk starts from.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// SetFinish sets an optional node after which the walk stops.
func (b *Builder) SetFinish(name string) *Builder {
	b.finish = name
	return b
}

// SetErrorHandler registers a recovery handler for a declared node.
func (b *Builder) SetErrorHandler(name string, h core.ErrorHandler) *Builder {
	n, ok := b.nodes[name]
	if !ok {
		b.errs = append(b.errs, fmt.Sprintf("error handler for undeclared node %q", name))
		return b
	}

	n.onError = h

	return b
}

// SetStateUpdate registers a hook that rewrites a node's update before merging.
func (b *Builder) SetStateUpdate(name string, fn core.StateUpdateFunc) *Builder {
	n, ok := b.nodes[name]
	if !ok {
		b.errs = append(b.errs, fmt.Sprintf("state update for undeclared node %q", name))
		return b
	}

	n.stateUpdate = fn

	return b
}

// Spec returns the declarative shadow of the builder. Conditional edges built
// from Go predicates are rendered with a placeholder expression.
func (b *Builder) Spec() core.GraphSpec {
	spec := core.GraphSpec{Entry: b.entry, Finish: b.finish}

	for _, name := range b.order {
		n := b.nodes[name]
		spec.Nodes = append(spec.Nodes, core.NodeSpec{Name: name, Kind: n.handler.Kind(), Params: n.params})
	}

	spec.Edges = append(spec.Edges, b.edges...)

	for _, src := range b.condOrder {
		c := b.conditional[src]

		expr := c.expression
		if expr == "" {
			expr = "<predicate>"
		}

		spec.ConditionalEdges = append(spec.ConditionalEdges, core.ConditionalEdgeSpec{Source: src, Expression: expr, Mapping: c.mapping})
	}

	return spec
}
