package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGraphValidation matches every *GraphValidationError.
	ErrGraphValidation = errors.New("graph validation failed")
	// ErrNodeExecution matches every *NodeExecutionError.
	ErrNodeExecution = errors.New("node execution failed")
	// ErrNotFound matches every *NotFoundError and ErrCheckpointNotFound.
	ErrNotFound = errors.New("not found")
	// ErrCheckpointNotFound is returned by CheckpointStore.Load for unknown sessions.
	ErrCheckpointNotFound = fmt.Errorf("checkpoint %w", ErrNotFound)
	// ErrInvalidTransition is returned for an illegal session status change.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrStepLimit is wrapped by StepLimitError once a StepBudget is used up.
	ErrStepLimit = errors.New("node execution limit exceeded")
)

// GraphValidationError reports a malformed graph declaration. It is always
// raised before any node runs.
type GraphValidationError struct {
	Reason string
	Nodes  []string
}

func (e *GraphValidationError) Error() string {
	if len(e.Nodes) == 0 {
		return "graph validation: " + e.Reason
	}

	return fmt.Sprintf("graph validation: %s [%s]", e.Reason, strings.Join(e.Nodes, ", "))
}

// Is makes errors.Is(err, ErrGraphValidation) hold.
func (e *GraphValidationError) Is(target error) bool { return target == ErrGraphValidation }

// NewGraphValidationError builds a GraphValidationError.
func NewGraphValidationError(reason string, nodes ...string) *GraphValidationError {
	return &GraphValidationError{Reason: reason, Nodes: nodes}
}

// NodeExecutionError wraps a failure raised inside a node.
type NodeExecutionError struct {
	Node string
	Err  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
}

// Unwrap returns the underlying cause.
func (e *NodeExecutionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNodeExecution) hold.
func (e *NodeExecutionError) Is(target error) bool { return target == ErrNodeExecution }

// NotFoundError reports an unknown registry type, graph key or session.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
