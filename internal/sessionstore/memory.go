package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/flowstack/sessioncore/pkg/models"
)

// MemoryStore keeps sessions and their event lists in process memory,
// grounded on the teacher's internal/jobs.MemoryStore mutex+map idiom.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	events   map[string][]*models.SessionEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		events:   make(map[string][]*models.SessionEvent),
	}
}

func (s *MemoryStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		clone := *sess
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) mutate(id string, fn func(*models.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(sess)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	return s.mutate(id, func(sess *models.Session) { sess.Status = status })
}

func (s *MemoryStore) UpdateTitle(ctx context.Context, id string, title string) error {
	return s.mutate(id, func(sess *models.Session) { sess.Title = title })
}

func (s *MemoryStore) UpdateLatestMessage(ctx context.Context, id, message string, at time.Time) error {
	return s.mutate(id, func(sess *models.Session) {
		sess.LatestMessage = message
		sess.LatestMessageAt = at
	})
}

func (s *MemoryStore) IncrementUnreadMessageCount(ctx context.Context, id string) error {
	return s.mutate(id, func(sess *models.Session) { sess.UnreadMessageCount++ })
}

func (s *MemoryStore) ResetUnreadMessageCount(ctx context.Context, id string) error {
	return s.mutate(id, func(sess *models.Session) { sess.UnreadMessageCount = 0 })
}

func (s *MemoryStore) BindSandbox(ctx context.Context, id, sandboxID string) error {
	return s.mutate(id, func(sess *models.Session) { sess.SandboxID = sandboxID })
}

func (s *MemoryStore) BindTask(ctx context.Context, id, taskID string) error {
	return s.mutate(id, func(sess *models.Session) { sess.TaskID = taskID })
}

func (s *MemoryStore) ClearTask(ctx context.Context, id string) error {
	return s.mutate(id, func(sess *models.Session) { sess.TaskID = "" })
}

func (s *MemoryStore) AppendEvent(ctx context.Context, id string, event *models.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	clone := *event
	s.events[id] = append(s.events[id], &clone)
	return nil
}

func (s *MemoryStore) GetEvents(ctx context.Context, id string) ([]*models.SessionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return nil, ErrNotFound
	}
	events := s.events[id]
	out := make([]*models.SessionEvent, len(events))
	copy(out, events)
	return out, nil
}
