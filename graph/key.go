package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hupe1980/reportgraph/core"
)

type canonicalNode struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params"`
}

type canonicalSpec struct {
	Nodes       []canonicalNode            `json:"nodes"`
	Edges       []core.EdgeSpec            `json:"edges"`
	Conditional []core.ConditionalEdgeSpec `json:"conditional"`
	Entry       string                     `json:"entry"`
	Finish      string                     `json:"finish"`
}

// Key returns a deterministic sha256 hex digest of the graph content. Node,
// edge and conditional-edge declaration order does not affect the key, and
// duplicate edges collapse.
func Key(spec core.GraphSpec) string {
	c := canonicalSpec{Entry: spec.Entry, Finish: spec.Finish}

	for _, n := range spec.Nodes {
		c.Nodes = append(c.Nodes, canonicalNode{Name: n.Name, Type: n.TypeName(), Kind: n.Kind.String(), Params: n.Params})
	}

	sort.Slice(c.Nodes, func(i, j int) bool { return c.Nodes[i].Name < c.Nodes[j].Name })

	seen := make(map[core.EdgeSpec]struct{}, len(spec.Edges))
	for _, e := range spec.Edges {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		c.Edges = append(c.Edges, e)
	}

	sort.Slice(c.Edges, func(i, j int) bool {
		if c.Edges[i].Source != c.Edges[j].Source {
			return c.Edges[i].Source < c.Edges[j].Source
		}
		return c.Edges[i].Target < c.Edges[j].Target
	})

	c.Conditional = append(c.Conditional, spec.ConditionalEdges...)
	sort.Slice(c.Conditional, func(i, j int) bool {
		if c.Conditional[i].Source != c.Conditional[j].Source {
			return c.Conditional[i].Source < c.Conditional[j].Source
		}
		return c.Conditional[i].Expression < c.Conditional[j].Expression
	})

	// encoding/json writes map keys in sorted order.
	payload, err := json.Marshal(c)
	if err != nil {
		// Params holding values json cannot encode fall back to fmt, which
		// also prints maps with sorted keys.
		payload = []byte(fmt.Sprintf("%+v", c))
	}

	sum := sha256.Sum256(payload)

	return hex.EncodeToString(sum[:])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
