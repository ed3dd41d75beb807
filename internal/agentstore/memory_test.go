package agentstore

import (
	"context"
	"testing"
	"time"

	"github.com/flowstack/sessioncore/pkg/models"
)

func TestMemoryStore_CreateGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	agent := &models.Agent{ID: "agent-1", ModelName: "claude-sonnet-4-20250514", Temperature: 0.2, MaxTokens: 4096, CreatedAt: time.Now().UTC()}

	if err := s.Create(ctx, agent); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Get(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ModelName != agent.ModelName {
		t.Errorf("ModelName = %q, want %q", got.ModelName, agent.ModelName)
	}

	if err := s.Delete(ctx, "agent-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "agent-1"); err != ErrNotFound {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("Get() = %v, want ErrNotFound", err)
	}
}
