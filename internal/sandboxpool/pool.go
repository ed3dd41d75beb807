// Package sandboxpool manages sandbox handles, grounded on the
// teacher's tools/sandbox pool idiom: acquire-on-first-use, reuse for
// the session's lifetime, release on session end. Where the teacher
// pools sandboxes by language for reuse across sessions, this pool
// keys strictly by session id and never shares a handle across
// sessions, matching the exclusive-per-session sandbox semantics.
package sandboxpool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Handle is a live sandbox assigned to one session.
type Handle struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Provisioner creates and destroys the underlying sandbox resource
// (a container, a microVM, a remote execution box). Implementations
// wrap whichever backend internal/config.SandboxConfig.Backend names.
type Provisioner interface {
	Provision(ctx context.Context, sessionID string) (*Handle, error)
	Destroy(ctx context.Context, handle *Handle) error
}

// Pool hands out exactly one Handle per session, provisioning lazily
// on first Acquire and reusing it for every subsequent call until
// Release.
type Pool struct {
	mu          sync.Mutex
	provisioner Provisioner
	ttl         time.Duration
	handles     map[string]*Handle
}

// New returns a Pool backed by provisioner. ttl bounds how long an
// idle handle is kept before a fresh Acquire re-provisions it.
func New(provisioner Provisioner, ttl time.Duration) *Pool {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Pool{provisioner: provisioner, ttl: ttl, handles: make(map[string]*Handle)}
}

// Acquire returns the session's sandbox handle, provisioning one if
// none exists yet or the existing one has expired.
func (p *Pool) Acquire(ctx context.Context, sessionID string) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.handles[sessionID]; ok {
		if time.Now().Before(h.ExpiresAt) {
			return h, nil
		}
		if err := p.provisioner.Destroy(ctx, h); err != nil {
			return nil, fmt.Errorf("destroy expired sandbox: %w", err)
		}
		delete(p.handles, sessionID)
	}

	h, err := p.provisioner.Provision(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("provision sandbox: %w", err)
	}
	h.ExpiresAt = time.Now().Add(p.ttl)
	p.handles[sessionID] = h
	return h, nil
}

// Release tears down and forgets the session's sandbox handle, if any.
func (p *Pool) Release(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	h, ok := p.handles[sessionID]
	if ok {
		delete(p.handles, sessionID)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if err := p.provisioner.Destroy(ctx, h); err != nil {
		return fmt.Errorf("destroy sandbox: %w", err)
	}
	return nil
}

// Active reports whether sessionID currently holds a live handle.
func (p *Pool) Active(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handles[sessionID]
	return ok
}

// Lookup returns the session's current handle without provisioning
// one, for callers (the shell/file snapshot endpoints) that must not
// acquire a sandbox on a session that has never run.
func (p *Pool) Lookup(sessionID string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[sessionID]
	return h, ok
}
