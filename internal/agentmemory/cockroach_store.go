package agentmemory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/flowstack/sessioncore/pkg/models"
)

// CockroachStore persists each (agentID, role) log as a JSONB array in
// a single row, replacing it wholesale on Append. This mirrors the
// teacher's sessions store: one round trip to load, one to save,
// ordering left entirely to the Go-side slice.
type CockroachStore struct {
	db *sql.DB
}

// NewCockroachStore returns a Store backed by db. Callers must call
// EnsureSchema once at startup.
func NewCockroachStore(db *sql.DB) *CockroachStore {
	return &CockroachStore{db: db}
}

// EnsureSchema creates the backing table if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS agent_memory (
			agent_id   STRING NOT NULL,
			role       STRING NOT NULL,
			messages   JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (agent_id, role)
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure agent memory schema: %w", err)
	}
	return nil
}

func (s *CockroachStore) Load(ctx context.Context, agentID, role string) (*models.AgentMemory, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM agent_memory WHERE agent_id = $1 AND role = $2`,
		agentID, role,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return &models.AgentMemory{AgentID: agentID, Role: role}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load agent memory: %w", err)
	}
	var msgs []models.MemoryMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode agent memory: %w", err)
	}
	return &models.AgentMemory{AgentID: agentID, Role: role, Messages: msgs}, nil
}

func (s *CockroachStore) Append(ctx context.Context, agentID, role, systemPrompt string, msg models.MemoryMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append memory: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT messages FROM agent_memory WHERE agent_id = $1 AND role = $2 FOR UPDATE`,
		agentID, role,
	).Scan(&raw)
	mem := &models.AgentMemory{AgentID: agentID, Role: role}
	switch {
	case err == sql.ErrNoRows:
		// fresh log
	case err != nil:
		return fmt.Errorf("load agent memory for update: %w", err)
	default:
		if err := json.Unmarshal(raw, &mem.Messages); err != nil {
			return fmt.Errorf("decode agent memory: %w", err)
		}
	}

	mem.Append(systemPrompt, msg)
	encoded, err := json.Marshal(mem.Messages)
	if err != nil {
		return fmt.Errorf("encode agent memory: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPSERT INTO agent_memory (agent_id, role, messages, updated_at)
		VALUES ($1, $2, $3, now())`,
		agentID, role, encoded,
	)
	if err != nil {
		return fmt.Errorf("save agent memory: %w", err)
	}
	return tx.Commit()
}

func (s *CockroachStore) Reset(ctx context.Context, agentID, role string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_memory WHERE agent_id = $1 AND role = $2`, agentID, role)
	if err != nil {
		return fmt.Errorf("reset agent memory: %w", err)
	}
	return nil
}
