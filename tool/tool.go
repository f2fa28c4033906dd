// Package tool implements schema-validated tools that run as Tool nodes of a
// workflow graph. Arguments are validated against a JSON schema before the
// tool runs and failures are reported as *ToolError with a stable code.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/internal/util"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// Tool is a named capability invoked with a single core.ToolCall.
//
// Tool implementations should:
//   - Provide clear, descriptive snake_case names
//   - Define a JSON schema for their arguments
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns a JSON schema describing call.Arguments.
	Parameters() map[string]any

	// Call executes the tool. call.Arguments are the node params and
	// call.Input is a snapshot of the shared execution data.
	Call(ctx context.Context, call core.ToolCall) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes a wrapped error stored in Details.
func (e *ToolError) Unwrap() error {
	err, _ := e.Details.(error)
	return err
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Handler adapts a Tool into a Tool node handler.
func Handler(t Tool) core.ToolFunc {
	return func(ctx context.Context, call core.ToolCall) (any, error) {
		return t.Call(ctx, call)
	}
}
