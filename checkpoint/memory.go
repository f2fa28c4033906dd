package checkpoint

import (
	"context"
	"sync"

	"github.com/hupe1980/reportgraph/core"
)

// Memory is an in-process CheckpointStore. Saved states are encoded so later
// mutations of the caller's state do not leak into the store.
type Memory struct {
	mu     sync.RWMutex
	states map[string][]byte
}

var _ core.CheckpointStore = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{states: make(map[string][]byte)}
}

// Save stores the state of a session, replacing any earlier checkpoint.
func (m *Memory) Save(_ context.Context, sessionID string, state *core.ExecutionState) error {
	if sessionID == "" {
		return errEmptySessionID
	}

	raw, err := encode(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[sessionID] = raw

	return nil
}

// Load returns the last saved state of a session.
func (m *Memory) Load(_ context.Context, sessionID string) (*core.ExecutionState, error) {
	m.mu.RLock()
	raw, ok := m.states[sessionID]
	m.mu.RUnlock()

	if !ok {
		return nil, core.ErrCheckpointNotFound
	}

	return decode(raw)
}

// Delete removes the checkpoint of a session. Unknown ids are ignored.
func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, sessionID)

	return nil
}

// Len returns the number of stored checkpoints.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.states)
}
