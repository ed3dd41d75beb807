package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/flowstack/sessioncore/pkg/models"
)

// CockroachStore persists sessions and their event logs in CockroachDB,
// one row per session plus one row per event, grounded on the
// teacher's internal/sessions/cockroach.go prepared-statement idiom and
// internal/jobs/cockroach.go's connection-pool setup.
type CockroachStore struct {
	db *sql.DB
}

// NewCockroachStore returns a Store backed by db. Callers must call
// EnsureSchema once at startup.
func NewCockroachStore(db *sql.DB) *CockroachStore {
	return &CockroachStore{db: db}
}

// EnsureSchema creates the backing tables if they do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id                     STRING PRIMARY KEY,
			agent_id               STRING NOT NULL,
			sandbox_id             STRING NOT NULL DEFAULT '',
			task_id                STRING NOT NULL DEFAULT '',
			status                 STRING NOT NULL,
			title                  STRING NOT NULL DEFAULT '',
			latest_message         STRING NOT NULL DEFAULT '',
			latest_message_at      TIMESTAMPTZ,
			unread_message_count   INT NOT NULL DEFAULT 0,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS session_events (
			session_id STRING NOT NULL,
			seq        INT NOT NULL,
			event_id   STRING NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS session_events_session_id_idx ON session_events (session_id);`,
		`CREATE INDEX IF NOT EXISTS sessions_agent_id_idx ON sessions (agent_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure session schema: %w", err)
		}
	}
	return nil
}

func (s *CockroachStore) Create(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, sandbox_id, task_id, status, title, latest_message, latest_message_at, unread_message_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		session.ID, session.AgentID, session.SandboxID, session.TaskID, session.Status,
		session.Title, session.LatestMessage, nullTime(session.LatestMessageAt), session.UnreadMessageCount,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *CockroachStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, sandbox_id, task_id, status, title, latest_message, latest_message_at, unread_message_count, created_at, updated_at
		FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (s *CockroachStore) GetAll(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, sandbox_id, task_id, status, title, latest_message, latest_message_at, unread_message_count, created_at, updated_at
		FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *CockroachStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM session_events WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session events: %w", err)
	}
	return nil
}

func (s *CockroachStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CockroachStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	return s.exec(ctx, `UPDATE sessions SET status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (s *CockroachStore) UpdateTitle(ctx context.Context, id string, title string) error {
	return s.exec(ctx, `UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`, id, title)
}

func (s *CockroachStore) UpdateLatestMessage(ctx context.Context, id, message string, at time.Time) error {
	return s.exec(ctx, `UPDATE sessions SET latest_message = $2, latest_message_at = $3, updated_at = now() WHERE id = $1`, id, message, at)
}

func (s *CockroachStore) IncrementUnreadMessageCount(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE sessions SET unread_message_count = unread_message_count + 1, updated_at = now() WHERE id = $1`, id)
}

func (s *CockroachStore) ResetUnreadMessageCount(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE sessions SET unread_message_count = 0, updated_at = now() WHERE id = $1`, id)
}

func (s *CockroachStore) BindSandbox(ctx context.Context, id, sandboxID string) error {
	return s.exec(ctx, `UPDATE sessions SET sandbox_id = $2, updated_at = now() WHERE id = $1`, id, sandboxID)
}

func (s *CockroachStore) BindTask(ctx context.Context, id, taskID string) error {
	return s.exec(ctx, `UPDATE sessions SET task_id = $2, updated_at = now() WHERE id = $1`, id, taskID)
}

func (s *CockroachStore) ClearTask(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE sessions SET task_id = '', updated_at = now() WHERE id = $1`, id)
}

func (s *CockroachStore) AppendEvent(ctx context.Context, id string, event *models.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_events (session_id, seq, event_id, payload)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3 FROM session_events WHERE session_id = $1`,
		id, event.ID, payload,
	)
	if err != nil {
		return fmt.Errorf("append session event: %w", err)
	}
	return nil
}

func (s *CockroachStore) GetEvents(ctx context.Context, id string) ([]*models.SessionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM session_events WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var out []*models.SessionEvent
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		event, err := models.UnmarshalSessionEvent(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var sess models.Session
	var latestAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.AgentID, &sess.SandboxID, &sess.TaskID, &sess.Status,
		&sess.Title, &sess.LatestMessage, &latestAt, &sess.UnreadMessageCount,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if latestAt.Valid {
		sess.LatestMessageAt = latestAt.Time
	}
	return &sess, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
