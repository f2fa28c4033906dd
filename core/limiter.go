package core

import "fmt"

// StepLimitError names the node that would have overrun a walk's execution
// budget.
type StepLimitError struct {
	Node  string
	Limit int
	Spent []string
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("%s: %s refused after %d of %d executions", ErrStepLimit, e.Node, len(e.Spent), e.Limit)
}

func (e *StepLimitError) Unwrap() error { return ErrStepLimit }

// StepBudget charges node executions within one walk. A zero limit never
// refuses. It is not safe for concurrent use.
type StepBudget struct {
	limit int
	spent []string
}

// NewStepBudget returns a budget that admits limit executions.
func NewStepBudget(limit int) *StepBudget {
	return &StepBudget{limit: limit}
}

// Spend charges one execution of node, or refuses it with a
// *StepLimitError once the budget is used up.
func (b *StepBudget) Spend(node string) error {
	if b.limit > 0 && len(b.spent) >= b.limit {
		return &StepLimitError{Node: node, Limit: b.limit, Spent: append([]string(nil), b.spent...)}
	}

	b.spent = append(b.spent, node)

	return nil
}

// Spent returns the charged nodes in execution order.
func (b *StepBudget) Spent() []string { return append([]string(nil), b.spent...) }
