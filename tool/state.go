package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/reportgraph/core"
)

// StateTool reads and writes shared execution data from inside a graph. Its
// result is merged into the data like any node update.
//
// Operations:
//   - get_state: copy the value at a dotted key path of the input to target
//   - set_state: set key to value
//   - default_state: set key to value only when the input lacks it
type StateTool struct {
	name        string
	description string
}

// NewStateTool creates a new state tool.
func NewStateTool() *StateTool {
	return &StateTool{
		name:        "state",
		description: "Reads and writes shared workflow data. Supports operations: get_state, set_state, default_state.",
	}
}

// Name returns the tool identifier.
func (t *StateTool) Name() string { return t.name }

// Description returns the tool description.
func (t *StateTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters.
func (t *StateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get_state", "set_state", "default_state"},
				"description": "The state operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Data key; get_state accepts a dotted path into nested objects",
			},
			"value": map[string]any{
				"description": "Value for set_state and default_state (any type)",
			},
			"target": map[string]any{
				"type":        "string",
				"description": "Key that receives the get_state result (defaults to the last path segment)",
			},
		},
		"required": []string{"operation", "key"},
	}
}

// Handler returns the tool as a Tool node handler with argument validation.
func (t *StateTool) Handler() core.ToolFunc {
	return NewFunctionTool(t.name, t.description, t.Parameters(), func(ctx context.Context, args, input map[string]any) (any, error) {
		return t.Call(ctx, core.ToolCall{Name: t.name, Arguments: args, Input: input})
	}).Handler()
}

// Call implements the Tool interface.
func (t *StateTool) Call(_ context.Context, call core.ToolCall) (any, error) {
	operation, _ := call.Arguments["operation"].(string)

	key, ok := call.Arguments["key"].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("key parameter is required for %s operation", operation)
	}

	switch operation {
	case "get_state":
		return t.handleGetState(call, key)
	case "set_state":
		return map[string]any{key: call.Arguments["value"]}, nil
	case "default_state":
		if _, exists := call.Input[key]; exists {
			return nil, nil
		}
		return map[string]any{key: call.Arguments["value"]}, nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

func (t *StateTool) handleGetState(call core.ToolCall, path string) (any, error) {
	parts := strings.Split(path, ".")

	target, _ := call.Arguments["target"].(string)
	if target == "" {
		target = parts[len(parts)-1]
	}

	var current any = call.Input
	for _, p := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("key path %q not found", path)
		}

		current, ok = m[p]
		if !ok {
			return nil, fmt.Errorf("key path %q not found", path)
		}
	}

	return map[string]any{target: current}, nil
}
