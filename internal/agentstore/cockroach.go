package agentstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/flowstack/sessioncore/pkg/models"
)

// CockroachStore persists agent configs in CockroachDB, grounded on
// sessionstore.CockroachStore's prepared-statement idiom.
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
		CREATE TABLE IF NOT EXISTS agents (
			id            STRING PRIMARY KEY,
			model_name    STRING NOT NULL,
			temperature   FLOAT NOT NULL DEFAULT 0,
			max_tokens    INT NOT NULL DEFAULT 0,
			system_prompt STRING NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	if err != nil {
		return fmt.Errorf("ensure agent schema: %w", err)
	}
	return nil
}

func (s *CockroachStore) Create(ctx context.Context, agent *models.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, model_name, temperature, max_tokens, system_prompt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		agent.ID, agent.ModelName, agent.Temperature, agent.MaxTokens, agent.SystemPrompt, agent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *CockroachStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, model_name, temperature, max_tokens, system_prompt, created_at
		FROM agents WHERE id = $1`, id,
	).Scan(&agent.ID, &agent.ModelName, &agent.Temperature, &agent.MaxTokens, &agent.SystemPrompt, &agent.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &agent, nil
}

func (s *CockroachStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
