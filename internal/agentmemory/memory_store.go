package agentmemory

import (
	"context"
	"sync"

	"github.com/flowstack/sessioncore/pkg/models"
)

// InMemoryStore keeps one AgentMemory per (agentID, role) pair for the
// process lifetime, grounded on the teacher's internal/jobs.MemoryStore
// mutex+map idiom.
type InMemoryStore struct {
	mu   sync.Mutex
	logs map[string]*models.AgentMemory
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{logs: make(map[string]*models.AgentMemory)}
}

func (s *InMemoryStore) Load(ctx context.Context, agentID, role string) (*models.AgentMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(agentID, role)
	log, ok := s.logs[k]
	if !ok {
		log = &models.AgentMemory{AgentID: agentID, Role: role}
		s.logs[k] = log
	}
	return cloneMemory(log), nil
}

func (s *InMemoryStore) Append(ctx context.Context, agentID, role, systemPrompt string, msg models.MemoryMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(agentID, role)
	log, ok := s.logs[k]
	if !ok {
		log = &models.AgentMemory{AgentID: agentID, Role: role}
		s.logs[k] = log
	}
	log.Append(systemPrompt, msg)
	return nil
}

func (s *InMemoryStore) Reset(ctx context.Context, agentID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, key(agentID, role))
	return nil
}

func cloneMemory(m *models.AgentMemory) *models.AgentMemory {
	msgs := make([]models.MemoryMessage, len(m.Messages))
	copy(msgs, m.Messages)
	return &models.AgentMemory{AgentID: m.AgentID, Role: m.Role, Messages: msgs}
}
