package core

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecutionState_CopiesInput(t *testing.T) {
	input := map[string]any{"a": 1}
	s := NewExecutionState(input)
	s.Merge(map[string]any{"a": 2})

	assert.Equal(t, 1, input["a"])
	assert.Equal(t, 2, s.Data["a"])
}

func TestExecutionState_RecordHistory(t *testing.T) {
	s := NewExecutionState(nil)
	s.RecordSuccess("A", map[string]any{"x": 1})
	s.RecordError("B", errors.New("boom"), false)

	assert.Len(t, s.History, 2)
	assert.Equal(t, StatusSuccess, s.History[0].Status)
	assert.Equal(t, "A", s.History[0].Node)
	assert.Equal(t, StatusError, s.History[1].Status)
	assert.Equal(t, "boom", s.History[1].Error)
	assert.NotNil(t, s.ErrorState)
	assert.Equal(t, "B", s.ErrorState.Node)
	assert.True(t, s.Executed("A"))
	assert.False(t, s.Executed("C"))
}

func TestFormatResult_Truncates(t *testing.T) {
	long := strings.Repeat("x", 800)
	assert.Len(t, FormatResult(long), 500)
	assert.Equal(t, "", FormatResult(nil))
}

func TestFormatResult_TruncatesOnRuneBoundary(t *testing.T) {
	// the 500-byte cut falls inside the 250th "é"
	out := FormatResult("a" + strings.Repeat("é", 300))

	assert.True(t, utf8.ValidString(out))
	assert.Len(t, out, 499)
	assert.Equal(t, "a"+strings.Repeat("é", 249), out)
}

func TestExecutionState_Clone(t *testing.T) {
	s := NewExecutionState(map[string]any{
		"rows": []any{map[string]any{"id": 1}},
	})
	s.Next = []string{"B"}
	s.RecordError("A", errors.New("x"), true)

	c := s.Clone()
	c.Data["rows"].([]any)[0].(map[string]any)["id"] = 2
	c.Next[0] = "C"
	c.ErrorState.Node = "Z"

	assert.Equal(t, 1, s.Data["rows"].([]any)[0].(map[string]any)["id"])
	assert.Equal(t, "B", s.Next[0])
	assert.Equal(t, "A", s.ErrorState.Node)
}

func TestStepBudget_Spend(t *testing.T) {
	b := NewStepBudget(2)
	require.NoError(t, b.Spend("fetch"))
	require.NoError(t, b.Spend("aging"))

	err := b.Spend("report")
	require.ErrorIs(t, err, ErrStepLimit)

	var limitErr *StepLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "report", limitErr.Node)
	assert.Equal(t, 2, limitErr.Limit)
	assert.Equal(t, []string{"fetch", "aging"}, limitErr.Spent)
	assert.Contains(t, err.Error(), "report refused after 2 of 2 executions")
	assert.Equal(t, []string{"fetch", "aging"}, b.Spent())
}

func TestStepBudget_Spend_Unlimited(t *testing.T) {
	b := NewStepBudget(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Spend("loop"))
	}

	assert.Len(t, b.Spent(), 100)
}
