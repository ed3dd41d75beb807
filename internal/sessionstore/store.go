// Package sessionstore persists the Session aggregate root: status,
// task/sandbox binding, title, unread counters, and its ordered event
// list, grounded on the teacher's internal/sessions package (store.go/
// cockroach.go shape) and the original ai-manus project's
// domain/repositories/session_repository.py contract.
package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/flowstack/sessioncore/pkg/models"
)

// ErrNotFound is returned when a session id has no matching record.
var ErrNotFound = errors.New("sessionstore: session not found")

// Store is the durable record of sessions named in spec.md §3/§4.8/§4.9.
// Every mutating method is atomic with respect to concurrent readers of
// the same session id.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	GetAll(ctx context.Context) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error

	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
	UpdateTitle(ctx context.Context, id string, title string) error
	UpdateLatestMessage(ctx context.Context, id, message string, at time.Time) error
	IncrementUnreadMessageCount(ctx context.Context, id string) error
	ResetUnreadMessageCount(ctx context.Context, id string) error
	BindSandbox(ctx context.Context, id, sandboxID string) error
	BindTask(ctx context.Context, id, taskID string) error
	ClearTask(ctx context.Context, id string) error

	AppendEvent(ctx context.Context, id string, event *models.SessionEvent) error
	GetEvents(ctx context.Context, id string) ([]*models.SessionEvent, error)
}
