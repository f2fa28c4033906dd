package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/logging"
)

// CompiledGraph is the validated, executable form of a graph. It is
// immutable after Compile and safe for concurrent use by many sessions.
type CompiledGraph struct {
	nodes       map[string]*node
	order       []string
	edges       map[string][]string
	conditional map[string]*conditional
	entry       string
	finish      string
	spec        core.GraphSpec
	logger      logging.Logger
}

// Nodes returns the node names in declaration order.
func (g *CompiledGraph) Nodes() []string { return append([]string(nil), g.order...) }

// HasNode reports whether name is a node of the graph.
func (g *CompiledGraph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Kind returns the handler kind of a node, or zero for unknown nodes.
func (g *CompiledGraph) Kind(name string) core.NodeKind {
	n, ok := g.nodes[name]
	if !ok {
		return 0
	}
	return n.handler.Kind()
}

// Entry returns the entry node.
func (g *CompiledGraph) Entry() string { return g.entry }

// Finish returns the finish node, or "" if none was set.
func (g *CompiledGraph) Finish() string { return g.finish }

// Spec returns the declarative form the graph was compiled from.
func (g *CompiledGraph) Spec() core.GraphSpec { return g.spec }

// Key returns the content hash of the graph.
func (g *CompiledGraph) Key() string { return Key(g.spec) }

// Successors returns the unconditional successors of a node in declaration order.
func (g *CompiledGraph) Successors(name string) []string {
	return append([]string(nil), g.edges[name]...)
}

// Next returns the nodes to enqueue after name has run. A conditional edge
// takes precedence over plain edges and yields at most one node; routing to
// End yields none.
func (g *CompiledGraph) Next(name string, state *core.ExecutionState) ([]string, error) {
	c, ok := g.conditional[name]
	if !ok {
		return g.Successors(name), nil
	}

	value, err := protect(func() (any, error) { return c.predicate(state) })
	if err != nil {
		return nil, &core.NodeExecutionError{Node: name, Err: fmt.Errorf("evaluate route: %w", err)}
	}

	key := fmt.Sprint(value)

	target, ok := c.mapping[key]
	if !ok {
		return nil, &core.NodeExecutionError{Node: name, Err: fmt.Errorf("no route for %q", key)}
	}

	g.logger.Debug("graph.route.selected", "node", name, "key", key, "target", target)

	if target == End {
		return nil, nil
	}

	return []string{target}, nil
}

// ExecuteNode runs a single node through the adapter: it invokes the handler
// with its native call shape, normalizes the result into a partial update,
// merges it and appends one history entry. A failure is recovered through
// the node's error handler when one is registered; otherwise it is returned
// as a *core.NodeExecutionError.
func (g *CompiledGraph) ExecuteNode(ctx context.Context, name string, state *core.ExecutionState) error {
	n, ok := g.nodes[name]
	if !ok {
		return &core.NotFoundError{Kind: "node", Name: name}
	}

	state.CurrentStep = name
	start := time.Now()

	g.logger.Debug("graph.node.start", "node", name, "kind", n.handler.Kind().String())

	result, err := invoke(ctx, n, state)
	if err != nil {
		return g.fail(n, state, err, start)
	}

	update := normalize(result)
	if n.stateUpdate != nil {
		update, err = protect(func() (map[string]any, error) { return n.stateUpdate(state, update), nil })
		if err != nil {
			return g.fail(n, state, fmt.Errorf("state update: %w", err), start)
		}
	}

	state.Merge(update)
	state.RecordSuccess(name, result)
	g.logNode(name, time.Since(start), nil)

	return nil
}

// fail records a node failure and runs its error handler. A handler that
// panics leaves the failure unrecovered.
func (g *CompiledGraph) fail(n *node, state *core.ExecutionState, err error, start time.Time) error {
	if n.onError != nil {
		state.RecordError(n.name, err, true)

		update, herr := protect(func() (map[string]any, error) { return n.onError(state, err), nil })
		if herr == nil {
			state.Merge(update)
			g.logger.Warn("graph.node.recovered", "node", n.name, "error", err.Error())

			return nil
		}

		state.History = state.History[:len(state.History)-1]
		err = fmt.Errorf("%w; error handler: %w", err, herr)
	}

	state.RecordError(n.name, err, false)
	g.logNode(n.name, time.Since(start), err)

	return &core.NodeExecutionError{Node: n.name, Err: err}
}

func (g *CompiledGraph) logNode(name string, dur time.Duration, err error) {
	if gl, ok := g.logger.(*logging.GraphLogger); ok {
		gl.LogNodeExecution(name, dur, err == nil, err)
		return
	}

	if err != nil {
		g.logger.Error("graph.node.error", "node", name, "error", err.Error(), "duration_ms", dur.Milliseconds())
		return
	}

	g.logger.Debug("graph.node.success", "node", name, "duration_ms", dur.Milliseconds())
}

// protect runs fn and turns a panic into an error.
func protect[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn()
}

func invoke(ctx context.Context, n *node, state *core.ExecutionState) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch h := n.handler.(type) {
	case core.StateFunc:
		update, err := h(ctx, state)
		if err != nil {
			return nil, err
		}
		if update == nil {
			return nil, nil
		}
		return update, nil
	case core.AgentFunc:
		return h(ctx, state.Snapshot(), core.CloneMap(n.params))
	case core.ToolFunc:
		return h(ctx, core.ToolCall{
			ID:        uuid.NewString(),
			Name:      n.name,
			Arguments: core.CloneMap(n.params),
			Input:     state.Snapshot(),
		})
	default:
		return nil, fmt.Errorf("unsupported handler %T", n.handler)
	}
}

// normalize turns a handler result into a partial state update.
func normalize(result any) map[string]any {
	switch v := result.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		return map[string]any{"data": v}
	}
}
