// Package agentstore persists the Agent config record an orchestrator
// binds to each session: model name, temperature, token budget, and
// optional system prompt override, grounded on the teacher's
// internal/sessions store shape and the original ai-manus project's
// domain/models/agent.py.
package agentstore

import (
	"context"
	"errors"

	"github.com/flowstack/sessioncore/pkg/models"
)

// ErrNotFound is returned when an agent id has no matching record.
var ErrNotFound = errors.New("agentstore: agent not found")

// Store is the durable record of Agent configs.
type Store interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	Delete(ctx context.Context, id string) error
}
