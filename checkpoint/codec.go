package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/reportgraph/core"
)

var errEmptySessionID = errors.New("checkpoint: session id is empty")

func encode(state *core.ExecutionState) ([]byte, error) {
	if state == nil {
		return nil, errors.New("checkpoint: state is nil")
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode state: %w", err)
	}

	return raw, nil
}

func decode(raw []byte) (*core.ExecutionState, error) {
	var state core.ExecutionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("checkpoint: decode state: %w", err)
	}

	if state.Data == nil {
		state.Data = map[string]any{}
	}

	if state.Context == nil {
		state.Context = map[string]any{}
	}

	return &state, nil
}
