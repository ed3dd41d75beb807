// Package taskrunner owns the worker goroutine driving one session's
// plan/act flow: draining its input stream, running the flow, and
// appending every event it yields to the output stream and session
// store with the side-effects spec.md's event table names, grounded
// on the original system's agent_task_runner.py almost line for line
// and the teacher's internal/tasks/executor.go goroutine-lifecycle
// idiom (context + sync.Once stop).
package taskrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowstack/sessioncore/internal/eventstream"
	"github.com/flowstack/sessioncore/internal/flow"
	"github.com/flowstack/sessioncore/internal/sessionstore"
	"github.com/flowstack/sessioncore/pkg/models"
)

// SandboxClient is the subset of a sandbox's HTTP surface the task
// runner needs to enrich tool events before persisting them.
type SandboxClient interface {
	ViewShell(ctx context.Context, id string) (string, error)
	FileRead(ctx context.Context, path string) (string, error)
}

// Runner drives one session's worker loop. It is created with a
// concrete flow and a sandbox handle; the orchestrator launches Run in
// its own goroutine and keeps the Runner around to support Cancel and
// Destroy.
type Runner struct {
	sessionID string
	flow      *flow.Flow
	sessions  sessionstore.Store
	inbox     eventstream.Stream
	outbox    eventstream.Stream
	sandbox   SandboxClient
	release   func(context.Context) error

	mu          sync.Mutex
	cancelFn    context.CancelFunc
	stopOnce    sync.Once
	destroyOnce sync.Once
	done        chan struct{}
	terminal    atomic.Bool
}

// New returns a Runner for one session. sandbox may be nil when the
// session has no tools that need sandbox-backed enrichment.
func New(sessionID string, flw *flow.Flow, sessions sessionstore.Store, streams eventstream.Factory, sandbox SandboxClient, release func(context.Context) error) *Runner {
	return &Runner{
		sessionID: sessionID,
		flow:      flw,
		sessions:  sessions,
		inbox:     streams.Inbox(sessionID),
		outbox:    streams.Outbox(sessionID),
		sandbox:   sandbox,
		release:   release,
		done:      make(chan struct{}),
	}
}

// Flow returns the runner's underlying flow, so a caller resuming an
// already-active session can reuse it instead of rebuilding one.
func (r *Runner) Flow() *flow.Flow { return r.flow }

// Run pops exactly one message off the session's input stream, drives
// the flow with it, and persists every event the flow yields. It does
// not drain the whole inbox itself — the orchestrator calls Run again
// for each subsequent queued message, which is what lets at-most-one-
// worker enforcement and a session's WAITING status interleave safely
// with new input arriving mid-run. If the inbox is empty, Run returns
// immediately with no work done. It returns a non-nil error only for
// infrastructure failures (stream or storage errors); business-logic
// failures inside the flow are translated into a persisted ErrorEvent
// and a COMPLETED session instead of a Go error. Cancellation is
// swallowed here — the caller uses Cancel to force the session's
// terminal bookkeeping.
func (r *Runner) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancelFn = cancel
	r.mu.Unlock()
	defer close(r.done)

	if runCtx.Err() != nil {
		return nil
	}

	_, raw, err := r.inbox.Pop(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			return nil
		}
		return fmt.Errorf("taskrunner: pop input: %w", err)
	}
	if raw == nil {
		return nil
	}

	var msg models.MemoryMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("taskrunner: decode input message: %w", err)
	}

	var (
		waited    bool
		appendErr error
	)
	runErr := r.flow.Run(runCtx, msg.Content, func(event *models.SessionEvent) {
		if appendErr != nil {
			return
		}
		if event.Type == models.EventWait {
			waited = true
		}
		if err := r.appendEvent(runCtx, event); err != nil {
			appendErr = err
		}
	})
	if appendErr != nil {
		return fmt.Errorf("taskrunner: append event: %w", appendErr)
	}
	if runErr != nil {
		if runCtx.Err() != nil {
			return nil
		}
		if err := r.sessions.UpdateStatus(runCtx, r.sessionID, models.SessionCompleted); err != nil {
			return fmt.Errorf("taskrunner: mark completed after flow error: %w", err)
		}
		return nil
	}
	if !waited && r.flow.IsDone() {
		if err := r.sessions.UpdateStatus(runCtx, r.sessionID, models.SessionCompleted); err != nil {
			return fmt.Errorf("taskrunner: mark completed: %w", err)
		}
	}
	return nil
}

// Cancel cooperatively stops a running flow and, idempotently, forces
// the session's terminal bookkeeping: exactly one Done event is
// appended if no terminal event has been recorded yet, and the
// session moves to COMPLETED.
func (r *Runner) Cancel(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		r.mu.Lock()
		cancel := r.cancelFn
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
		}

		if !r.terminal.Load() {
			if appendErr := r.appendEvent(ctx, models.NewDoneEvent()); appendErr != nil {
				err = fmt.Errorf("taskrunner: append cancel done event: %w", appendErr)
				return
			}
		}
		if updateErr := r.sessions.UpdateStatus(ctx, r.sessionID, models.SessionCompleted); updateErr != nil {
			err = fmt.Errorf("taskrunner: mark completed on cancel: %w", updateErr)
		}
	})
	return err
}

// Destroy releases the session's sandbox handle. Safe to call more
// than once; only the first call has any effect.
func (r *Runner) Destroy(ctx context.Context) error {
	var err error
	r.destroyOnce.Do(func() {
		if r.release != nil {
			err = r.release(ctx)
		}
	})
	return err
}

func (r *Runner) appendEvent(ctx context.Context, event *models.SessionEvent) error {
	r.enrichToolContent(ctx, event)

	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	id, err := r.outbox.Put(ctx, payload)
	if err != nil {
		return fmt.Errorf("append to outbox: %w", err)
	}
	event.ID = id

	if err := r.sessions.AppendEvent(ctx, r.sessionID, event); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	if event.IsTerminal() {
		r.terminal.Store(true)
	}

	switch event.Type {
	case models.EventTitle:
		if err := r.sessions.UpdateTitle(ctx, r.sessionID, event.Title); err != nil {
			return fmt.Errorf("update title: %w", err)
		}
	case models.EventMessage:
		if event.Role == models.RoleAssistant {
			if err := r.sessions.UpdateLatestMessage(ctx, r.sessionID, event.Content, time.Now().UTC()); err != nil {
				return fmt.Errorf("update latest message: %w", err)
			}
			if err := r.sessions.IncrementUnreadMessageCount(ctx, r.sessionID); err != nil {
				return fmt.Errorf("increment unread count: %w", err)
			}
		}
	case models.EventWait:
		if err := r.sessions.UpdateStatus(ctx, r.sessionID, models.SessionWaiting); err != nil {
			return fmt.Errorf("update status to waiting: %w", err)
		}
	}
	return nil
}

// enrichToolContent fills in tool_content for the post-invocation
// stage of a tool event before it is persisted: a shell call's content
// becomes the sandbox's console snapshot, a file call's content
// becomes the file's contents, and a search call is left as-is since
// its own result payload already carries everything worth keeping.
// Absent required arguments fall back to a placeholder string rather
// than failing the whole event.
func (r *Runner) enrichToolContent(ctx context.Context, event *models.SessionEvent) {
	if event.Type != models.EventTool || event.ToolStage != models.ToolExecuted || r.sandbox == nil {
		return
	}

	switch event.ToolName {
	case "shell":
		id, _ := event.ToolInput["id"].(string)
		if id == "" {
			event.ToolContent = "(no shell session id)"
			return
		}
		content, err := r.sandbox.ViewShell(ctx, id)
		if err != nil {
			event.ToolContent = fmt.Sprintf("(failed to view shell: %v)", err)
			return
		}
		event.ToolContent = content
	case "file_access":
		path, _ := event.ToolInput["path"].(string)
		if path == "" {
			event.ToolContent = "(no file path)"
			return
		}
		content, err := r.sandbox.FileRead(ctx, path)
		if err != nil {
			event.ToolContent = fmt.Sprintf("(failed to read file: %v)", err)
			return
		}
		event.ToolContent = content
	}
}
