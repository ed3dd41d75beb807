// Package eventstream implements the per-session message queue used
// as both a session's inbox (incoming user/system messages) and outbox
// (typed SessionEvent records). It mirrors the original system's
// MessageQueue protocol: put, get, pop, is_empty, size, clear and
// delete_message, adapted to the teacher's mutex+map+ordered-id-slice
// in-memory store idiom (internal/jobs.MemoryStore) plus a durable
// variant grounded on the teacher's CockroachDB session store.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Stream is a generic, ordered, at-least-once message queue. T is the
// payload type: models.MemoryMessage-shaped content for an inbox,
// *models.SessionEvent for an outbox.
type Stream interface {
	// Put appends a message and returns its assigned id.
	Put(ctx context.Context, payload json.RawMessage) (string, error)

	// Get returns the first message with id greater than startID. If
	// startID is empty, it starts from the earliest message. When
	// blockMS > 0 and no message is immediately available, Get blocks
	// up to that many milliseconds for one to arrive (or until ctx is
	// done), returning ("", nil, nil) if none arrives in time.
	Get(ctx context.Context, startID string, blockMS int) (string, json.RawMessage, error)

	// Pop returns and removes the earliest message, or ("", nil, nil)
	// if the stream is empty.
	Pop(ctx context.Context) (string, json.RawMessage, error)

	Clear(ctx context.Context) error
	IsEmpty(ctx context.Context) (bool, error)
	Size(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Factory creates the inbox/outbox pair for a session.
type Factory interface {
	Inbox(sessionID string) Stream
	Outbox(sessionID string) Stream
}
