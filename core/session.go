package core

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	// SessionPlanned is the initial state after the graph is resolved.
	SessionPlanned SessionStatus = "planned"
	// SessionRunning means nodes are being executed.
	SessionRunning SessionStatus = "running"
	// SessionCompleted is terminal: the walk reached its end.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed is terminal: a node failed without recovery.
	SessionFailed SessionStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Session is one end-to-end execution of a compiled graph.
type Session struct {
	ID        string         `json:"id"`
	GraphKey  string         `json:"graph_key"`
	Status    SessionStatus  `json:"status"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewSession creates a Planned session.
func NewSession(id, graphKey string) *Session {
	return &Session{
		ID:        id,
		GraphKey:  graphKey,
		Status:    SessionPlanned,
		StartTime: time.Now().UTC(),
	}
}

// Start moves the session from Planned to Running.
func (s *Session) Start() error {
	if s.Status != SessionPlanned {
		return s.invalid(SessionRunning)
	}

	s.Status = SessionRunning

	return nil
}

// Complete moves a Running session to Completed and stores the result.
func (s *Session) Complete(result map[string]any) error {
	if s.Status != SessionRunning {
		return s.invalid(SessionCompleted)
	}

	s.Status = SessionCompleted
	s.Result = result
	s.EndTime = time.Now().UTC()

	return nil
}

// Fail moves a Running session to Failed. Partial results are kept.
func (s *Session) Fail(result map[string]any, cause error) error {
	if s.Status != SessionRunning {
		return s.invalid(SessionFailed)
	}

	s.Status = SessionFailed
	s.Result = result
	s.EndTime = time.Now().UTC()

	if cause != nil {
		s.Error = cause.Error()
	}

	return nil
}

// Duration returns the elapsed run time; zero while the session is not finished.
func (s *Session) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}

	return s.EndTime.Sub(s.StartTime)
}

// Clone returns a copy whose result map is independent of s.
func (s *Session) Clone() *Session {
	c := *s
	c.Result = cloneMap(s.Result)

	return &c
}

func (s *Session) invalid(to SessionStatus) error {
	return fmt.Errorf("%w: session %s cannot move from %s to %s", ErrInvalidTransition, s.ID, s.Status, to)
}
