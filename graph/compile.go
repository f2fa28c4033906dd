package graph

import (
	"fmt"
	"strings"

	"github.com/hupe1980/reportgraph/core"
)

// Compile validates the declarations and returns an executable graph.
//
// Checks run in order: declaration errors, entry point, edge endpoints,
// cycles, finish node. Every failure is a *core.GraphValidationError.
func (b *Builder) Compile() (*CompiledGraph, error) {
	if len(b.errs) > 0 {
		return nil, core.NewGraphValidationError("invalid declarations: " + strings.Join(b.errs, "; "))
	}

	if b.entry == "" {
		return nil, core.NewGraphValidationError("entry point not set")
	}

	if _, ok := b.nodes[b.entry]; !ok {
		return nil, core.NewGraphValidationError("entry point not declared", b.entry)
	}

	adj, err := b.adjacency()
	if err != nil {
		return nil, err
	}

	if cycle := findCycle(b.entry, b.order, adj); cycle != nil {
		return nil, core.NewGraphValidationError("cycle detected", cycle...)
	}

	if b.finish != "" {
		if _, ok := b.nodes[b.finish]; !ok {
			return nil, core.NewGraphValidationError("finish node not declared", b.finish)
		}
	}

	g := &CompiledGraph{
		nodes:       make(map[string]*node, len(b.nodes)),
		order:       append([]string(nil), b.order...),
		edges:       make(map[string][]string, len(b.nodes)),
		conditional: make(map[string]*conditional, len(b.conditional)),
		entry:       b.entry,
		finish:      b.finish,
		logger:      b.opts.Logger,
	}

	for name, n := range b.nodes {
		cp := *n
		g.nodes[name] = &cp
	}

	for _, e := range b.edges {
		if !contains(g.edges[e.Source], e.Target) {
			g.edges[e.Source] = append(g.edges[e.Source], e.Target)
		}
	}

	for src, c := range b.conditional {
		g.conditional[src] = c
	}

	g.spec = b.Spec()

	b.opts.Logger.Info("graph.compiled", "nodes", len(g.order), "edges", len(b.edges), "conditional_edges", len(b.conditional), "entry", b.entry)

	return g, nil
}

// adjacency checks every endpoint and returns the successor lists used for
// cycle detection, including conditional targets.
func (b *Builder) adjacency() (map[string][]string, error) {
	adj := make(map[string][]string, len(b.nodes))

	for _, e := range b.edges {
		var missing []string
		if _, ok := b.nodes[e.Source]; !ok {
			missing = append(missing, e.Source)
		}
		if _, ok := b.nodes[e.Target]; !ok {
			missing = append(missing, e.Target)
		}
		if len(missing) > 0 {
			return nil, core.NewGraphValidationError(fmt.Sprintf("edge %s -> %s references undeclared node", e.Source, e.Target), missing...)
		}

		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	for _, src := range b.condOrder {
		c := b.conditional[src]
		if _, ok := b.nodes[src]; !ok {
			return nil, core.NewGraphValidationError("conditional edge source not declared", src)
		}

		for _, key := range sortedKeys(c.mapping) {
			target := c.mapping[key]
			if target == End {
				continue
			}
			if _, ok := b.nodes[target]; !ok {
				return nil, core.NewGraphValidationError(fmt.Sprintf("conditional edge %s[%s] references undeclared node", src, key), target)
			}
			adj[src] = append(adj[src], target)
		}
	}

	return adj, nil
}

// findCycle runs a colored DFS from entry, then from every node not yet
// visited, and returns the first cycle found as a closed path.
func findCycle(entry string, order []string, adj map[string][]string) []string {
	const (
		white = iota
		grey
		black
	)

	color := make(map[string]int, len(order))

	var (
		path  []string
		cycle []string
		visit func(n string) bool
	)

	visit = func(n string) bool {
		color[n] = grey
		path = append(path, n)

		for _, next := range adj[n] {
			switch color[next] {
			case grey:
				start := indexOf(path, next)
				cycle = append(append([]string(nil), path[start:]...), next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[n] = black

		return false
	}

	if visit(entry) {
		return cycle
	}

	for _, n := range order {
		if color[n] == white && visit(n) {
			return cycle
		}
	}

	return nil
}

func indexOf(items []string, s string) int {
	for i, v := range items {
		if v == s {
			return i
		}
	}
	return -1
}

func contains(items []string, s string) bool { return indexOf(items, s) >= 0 }
