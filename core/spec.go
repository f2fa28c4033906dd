package core

import (
	"fmt"
	"strings"
)

// NodeKind identifies the native call shape of a node handler.
type NodeKind int

const (
	// KindFunction handlers receive the full execution state and return a partial update.
	KindFunction NodeKind = iota + 1
	// KindAgent handlers receive the shared data plus node params and return a result.
	KindAgent
	// KindTool handlers receive a ToolCall and return a result.
	KindTool
)

// String returns the lower case name of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindAgent:
		return "agent"
	case KindTool:
		return "tool"
	default:
		return ""
	}
}

// ParseNodeKind maps a kind name onto a NodeKind. The empty string yields the
// zero value, meaning the kind is taken from the resolved handler.
func ParseNodeKind(s string) (NodeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "function":
		return KindFunction, nil
	case "agent":
		return KindAgent, nil
	case "tool":
		return KindTool, nil
	default:
		return 0, fmt.Errorf("unknown node kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *NodeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// NodeSpec declares a named node. Type selects the registry entry used to
// construct the handler and defaults to Name.
type NodeSpec struct {
	Name   string         `json:"name" yaml:"name"`
	Type   string         `json:"type,omitempty" yaml:"type,omitempty"`
	Kind   NodeKind       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// TypeName returns the registry type for the node.
func (n NodeSpec) TypeName() string {
	if n.Type != "" {
		return n.Type
	}
	return n.Name
}

// EdgeSpec is an unconditional transition between two declared nodes.
type EdgeSpec struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// ConditionalEdgeSpec routes from Source to the Mapping entry selected by the
// formatted result of Expression evaluated against the execution data.
type ConditionalEdgeSpec struct {
	Source     string            `json:"source" yaml:"source"`
	Expression string            `json:"expression" yaml:"expression"`
	Mapping    map[string]string `json:"mapping" yaml:"mapping"`
}

// GraphSpec is the declarative description of a graph prior to compilation.
type GraphSpec struct {
	Nodes            []NodeSpec            `json:"nodes" yaml:"nodes"`
	Edges            []EdgeSpec            `json:"edges,omitempty" yaml:"edges,omitempty"`
	ConditionalEdges []ConditionalEdgeSpec `json:"conditional_edges,omitempty" yaml:"conditional_edges,omitempty"`
	Entry            string                `json:"entry" yaml:"entry"`
	Finish           string                `json:"finish,omitempty" yaml:"finish,omitempty"`
}

// NodeNames returns the declared node names in declaration order.
func (g GraphSpec) NodeNames() []string {
	names := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		names[i] = n.Name
	}
	return names
}
