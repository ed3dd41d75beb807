package eventstream

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// CockroachStream is a durable Stream backed by a CockroachDB-compatible
// table, grounded on the teacher's prepared-statement store idiom
// (internal/sessions/cockroach.go). Ordering comes from an
// auto-incrementing sequence id rather than a DB-native wait channel,
// so blocking Get polls with a fixed interval bounded by blockMS —
// documented as an Open Question resolution in DESIGN.md.
type CockroachStream struct {
	db        *sql.DB
	table     string
	sessionID string
	kind      string // "inbox" or "outbox"
}

// NewCockroachStream returns a Stream scoped to one session's inbox or
// outbox, stored in the shared `stream_messages` table.
func NewCockroachStream(db *sql.DB, sessionID, kind string) *CockroachStream {
	return &CockroachStream{db: db, table: "stream_messages", sessionID: sessionID, kind: kind}
}

// EnsureSchema creates the backing table if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stream_messages (
			seq_id     SERIAL PRIMARY KEY,
			session_id STRING NOT NULL,
			kind       STRING NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_stream_messages_session_kind
			ON stream_messages (session_id, kind, seq_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure event stream schema: %w", err)
	}
	return nil
}

func (s *CockroachStream) Put(ctx context.Context, payload json.RawMessage) (string, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO stream_messages (session_id, kind, payload) VALUES ($1, $2, $3) RETURNING seq_id`,
		s.sessionID, s.kind, []byte(payload),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("put event: %w", err)
	}
	return fmt.Sprintf("%020d", id), nil
}

func (s *CockroachStream) firstAfter(ctx context.Context, startID string) (string, json.RawMessage, error) {
	start := idToInt(startID)
	var id int64
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT seq_id, payload FROM stream_messages
		 WHERE session_id = $1 AND kind = $2 AND seq_id > $3
		 ORDER BY seq_id ASC LIMIT 1`,
		s.sessionID, s.kind, start,
	).Scan(&id, &payload)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("get event: %w", err)
	}
	return fmt.Sprintf("%020d", id), payload, nil
}

func (s *CockroachStream) Get(ctx context.Context, startID string, blockMS int) (string, json.RawMessage, error) {
	id, payload, err := s.firstAfter(ctx, startID)
	if err != nil || id != "" {
		return id, payload, err
	}
	if blockMS <= 0 {
		return "", nil, nil
	}

	deadline := time.Now().Add(time.Duration(blockMS) * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return "", nil, nil
			}
			id, payload, err := s.firstAfter(ctx, startID)
			if err != nil || id != "" {
				return id, payload, err
			}
		}
	}
}

func (s *CockroachStream) Pop(ctx context.Context) (string, json.RawMessage, error) {
	var id int64
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM stream_messages
		 WHERE seq_id = (
			SELECT seq_id FROM stream_messages
			WHERE session_id = $1 AND kind = $2
			ORDER BY seq_id ASC LIMIT 1
		 )
		 RETURNING seq_id, payload`,
		s.sessionID, s.kind,
	).Scan(&id, &payload)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("pop event: %w", err)
	}
	return fmt.Sprintf("%020d", id), payload, nil
}

func (s *CockroachStream) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stream_messages WHERE session_id = $1 AND kind = $2`, s.sessionID, s.kind)
	if err != nil {
		return fmt.Errorf("clear event stream: %w", err)
	}
	return nil
}

func (s *CockroachStream) IsEmpty(ctx context.Context) (bool, error) {
	size, err := s.Size(ctx)
	return size == 0, err
}

func (s *CockroachStream) Size(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM stream_messages WHERE session_id = $1 AND kind = $2`, s.sessionID, s.kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("size event stream: %w", err)
	}
	return count, nil
}

func (s *CockroachStream) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stream_messages WHERE session_id = $1 AND kind = $2 AND seq_id = $3`,
		s.sessionID, s.kind, idToInt(id))
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func idToInt(id string) int64 {
	var n int64
	fmt.Sscanf(id, "%d", &n)
	return n
}

// CockroachFactory builds per-session streams against a shared pool.
type CockroachFactory struct {
	db *sql.DB
}

// NewCockroachFactory returns a Factory backed by the given database
// connection. Callers must call EnsureSchema once at startup.
func NewCockroachFactory(db *sql.DB) *CockroachFactory {
	return &CockroachFactory{db: db}
}

func (f *CockroachFactory) Inbox(sessionID string) Stream  { return NewCockroachStream(f.db, sessionID, "inbox") }
func (f *CockroachFactory) Outbox(sessionID string) Stream { return NewCockroachStream(f.db, sessionID, "outbox") }
