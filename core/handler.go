package core

import "context"

// Handler is the tagged variant implemented by every node callable. The kind is
// fixed by the Go type of the handler so adapters never guess call shapes.
type Handler interface {
	Kind() NodeKind
}

// StateFunc is a Function node: it sees the whole execution state and returns
// a partial update merged into the shared data.
type StateFunc func(ctx context.Context, state *ExecutionState) (map[string]any, error)

// Kind implements Handler.
func (StateFunc) Kind() NodeKind { return KindFunction }

// AgentFunc is an Agent node: it receives a snapshot of the shared data and
// the node params.
type AgentFunc func(ctx context.Context, data map[string]any, params map[string]any) (any, error)

// Kind implements Handler.
func (AgentFunc) Kind() NodeKind { return KindAgent }

// ToolFunc is a Tool node invoked with a single ToolCall.
type ToolFunc func(ctx context.Context, call ToolCall) (any, error)

// Kind implements Handler.
func (ToolFunc) Kind() NodeKind { return KindTool }

// ToolCall is the request handed to Tool nodes.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Input     map[string]any `json:"input,omitempty"`
}

// ErrorHandler turns a node failure into a recovery update. Returning a nil
// map recovers without changing data.
type ErrorHandler func(state *ExecutionState, err error) map[string]any

// StateUpdateFunc post-processes a node update before it is merged.
type StateUpdateFunc func(state *ExecutionState, update map[string]any) map[string]any

// Predicate selects the next node of a conditional edge. The returned value is
// formatted with fmt.Sprint and looked up in the edge mapping.
type Predicate func(state *ExecutionState) (any, error)
