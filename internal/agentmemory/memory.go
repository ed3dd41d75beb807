// Package agentmemory persists the per-(agent, role) message log used
// by the planner and executor: the latest system message is always
// treated as current and prepended ahead of every other message in the
// effective view, mirroring the original system's memory service.
package agentmemory

import (
	"context"

	"github.com/flowstack/sessioncore/pkg/models"
)

// Store loads and appends to an agent's per-role memory log.
type Store interface {
	// Load returns the memory log for (agentID, role), creating an
	// empty one if none exists yet.
	Load(ctx context.Context, agentID, role string) (*models.AgentMemory, error)

	// Append adds a message to the log, prepending systemPrompt as the
	// log's first system message when the log is currently empty.
	Append(ctx context.Context, agentID, role, systemPrompt string, msg models.MemoryMessage) error

	// Reset clears the log for (agentID, role).
	Reset(ctx context.Context, agentID, role string) error
}

func key(agentID, role string) string {
	return agentID + ":" + role
}
