package core

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// HistoryStatus is the outcome recorded for a node execution.
type HistoryStatus string

const (
	// StatusSuccess marks a node that returned without error.
	StatusSuccess HistoryStatus = "success"
	// StatusError marks a node that failed, whether or not it was recovered.
	StatusError HistoryStatus = "error"
)

// maxResultLength bounds the formatted result stored in a history entry.
const maxResultLength = 500

// HistoryEntry is one line of the execution history.
type HistoryEntry struct {
	Node      string        `json:"node"`
	Status    HistoryStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Recovered bool          `json:"recovered,omitempty"`
}

// ErrorState captures the most recent node failure.
type ErrorState struct {
	Node      string    `json:"node"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionState is the mutable state threaded through one graph execution.
// It is owned by a single in-flight execution and is not safe for concurrent
// mutation.
type ExecutionState struct {
	Data        map[string]any `json:"data"`
	Context     map[string]any `json:"context,omitempty"`
	CurrentStep string         `json:"current_step,omitempty"`
	History     []HistoryEntry `json:"execution_history"`
	ErrorState  *ErrorState    `json:"error_state,omitempty"`
	// Next is the pending frontier, kept so a checkpoint can be resumed.
	Next []string `json:"next,omitempty"`
}

// NewExecutionState creates a state whose data is a copy of input.
func NewExecutionState(input map[string]any) *ExecutionState {
	data := make(map[string]any, len(input))
	for k, v := range input {
		data[k] = v
	}

	return &ExecutionState{
		Data:    data,
		Context: map[string]any{},
		History: []HistoryEntry{},
	}
}

// Get returns a data value.
func (s *ExecutionState) Get(key string) (any, bool) {
	v, ok := s.Data[key]
	return v, ok
}

// Merge applies a partial update to the shared data. Keys in the update
// replace existing keys.
func (s *ExecutionState) Merge(update map[string]any) {
	if len(update) == 0 {
		return
	}

	if s.Data == nil {
		s.Data = make(map[string]any, len(update))
	}

	for k, v := range update {
		s.Data[k] = v
	}
}

// Snapshot returns a shallow copy of the shared data.
func (s *ExecutionState) Snapshot() map[string]any {
	out := make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		out[k] = v
	}

	return out
}

// RecordSuccess appends a success entry for node.
func (s *ExecutionState) RecordSuccess(node string, result any) {
	s.History = append(s.History, HistoryEntry{
		Node:      node,
		Status:    StatusSuccess,
		Timestamp: time.Now().UTC(),
		Result:    FormatResult(result),
	})
}

// RecordError appends an error entry for node and updates ErrorState.
func (s *ExecutionState) RecordError(node string, err error, recovered bool) {
	now := time.Now().UTC()

	s.History = append(s.History, HistoryEntry{
		Node:      node,
		Status:    StatusError,
		Timestamp: now,
		Error:     err.Error(),
		Recovered: recovered,
	})

	s.ErrorState = &ErrorState{Node: node, Error: err.Error(), Timestamp: now}
}

// Executed reports whether node already has a history entry.
func (s *ExecutionState) Executed(node string) bool {
	for _, h := range s.History {
		if h.Node == node {
			return true
		}
	}

	return false
}

// Clone returns a copy that shares no mutable containers with s. Nested maps
// and slices inside Data are copied recursively.
func (s *ExecutionState) Clone() *ExecutionState {
	c := &ExecutionState{
		Data:        cloneMap(s.Data),
		Context:     cloneMap(s.Context),
		CurrentStep: s.CurrentStep,
		History:     append([]HistoryEntry(nil), s.History...),
		Next:        append([]string(nil), s.Next...),
	}

	if s.ErrorState != nil {
		es := *s.ErrorState
		c.ErrorState = &es
	}

	return c
}

// FormatResult renders a node result for the history, truncated to a fixed length.
func FormatResult(v any) string {
	if v == nil {
		return ""
	}

	out := fmt.Sprint(v)
	if len(out) <= maxResultLength {
		return out
	}

	// cut on a rune boundary
	end := maxResultLength
	for end > 0 && !utf8.RuneStart(out[end]) {
		end--
	}

	return out[:end]
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = cloneMap(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// CloneMap returns a recursive copy of m.
func CloneMap(m map[string]any) map[string]any { return cloneMap(m) }
