package agentstore

import (
	"context"
	"sync"

	"github.com/flowstack/sessioncore/pkg/models"
)

// MemoryStore keeps agent configs in process memory, grounded on the
// teacher's internal/jobs.MemoryStore mutex+map idiom.
type MemoryStore struct {
	mu     sync.Mutex
	agents map[string]*models.Agent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]*models.Agent)}
}

func (s *MemoryStore) Create(ctx context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *agent
	s.agents[agent.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *agent
	return &clone, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return ErrNotFound
	}
	delete(s.agents, id)
	return nil
}
