package agent

import (
	"fmt"
	"sync"
)

// BaseAgent bundles identity and the lock shared by agent implementations.
// Embed it in concrete agents. All exported methods are goroutine-safe.
type BaseAgent struct {
	mu          sync.RWMutex
	name        string
	description string
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.name
}

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.description
}

// SetDescription updates the agent's description. Empty values are ignored.
func (b *BaseAgent) SetDescription(desc string) {
	if desc == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.description = desc
}
