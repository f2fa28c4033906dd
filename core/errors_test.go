package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraphValidationError(t *testing.T) {
	err := fmt.Errorf("compile: %w", NewGraphValidationError("cycle detected", "A", "B", "A"))

	assert.ErrorIs(t, err, ErrGraphValidation)
	assert.Contains(t, err.Error(), "cycle detected [A, B, A]")

	var gve *GraphValidationError
	assert.True(t, errors.As(err, &gve))
	assert.Equal(t, []string{"A", "B", "A"}, gve.Nodes)
}

func TestNodeExecutionError(t *testing.T) {
	cause := errors.New("db down")
	err := &NodeExecutionError{Node: "data_fetch", Err: cause}

	assert.ErrorIs(t, err, ErrNodeExecution)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `node "data_fetch" failed: db down`, err.Error())
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Kind: "node type", Name: "x"}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, ErrCheckpointNotFound, ErrNotFound)
}

func TestNodeKind_Text(t *testing.T) {
	for _, k := range []NodeKind{KindFunction, KindAgent, KindTool} {
		text, err := k.MarshalText()
		assert.NoError(t, err)

		var parsed NodeKind
		assert.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, k, parsed)
	}

	_, err := ParseNodeKind("lambda")
	assert.Error(t, err)

	k, err := ParseNodeKind("")
	assert.NoError(t, err)
	assert.Equal(t, NodeKind(0), k)
}

func TestHandler_Kinds(t *testing.T) {
	assert.Equal(t, KindFunction, StateFunc(nil).Kind())
	assert.Equal(t, KindAgent, AgentFunc(nil).Kind())
	assert.Equal(t, KindTool, ToolFunc(nil).Kind())
}

func TestNodeSpec_TypeName(t *testing.T) {
	assert.Equal(t, "a", NodeSpec{Name: "a"}.TypeName())
	assert.Equal(t, "b", NodeSpec{Name: "a", Type: "b"}.TypeName())
}
