package core

import "context"

// CheckpointStore persists execution state per session so a run can be
// resumed after a restart. Load returns ErrCheckpointNotFound for unknown ids.
type CheckpointStore interface {
	Save(ctx context.Context, sessionID string, state *ExecutionState) error
	Load(ctx context.Context, sessionID string) (*ExecutionState, error)
	Delete(ctx context.Context, sessionID string) error
}
