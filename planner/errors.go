package planner

import "fmt"

// PlanParseError reports why a strategy produced no plan.
type PlanParseError struct {
	Strategy string
	Reason   string
	Err      error
}

func (e *PlanParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("plan strategy %s: %s", e.Strategy, e.Reason)
	}

	return fmt.Sprintf("plan strategy %s: %s: %v", e.Strategy, e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PlanParseError) Unwrap() error { return e.Err }

func parseError(strategy, reason string, err error) *PlanParseError {
	return &PlanParseError{Strategy: strategy, Reason: reason, Err: err}
}
