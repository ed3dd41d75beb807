// Package toolkit implements the tool registry and bounded-retry
// executor shared by the planner and executor loops, grounded on the
// teacher's internal/agent tool_registry.go mutex+map idiom and
// internal/retry's linear backoff policy.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flowstack/sessioncore/pkg/models"
)

// Tool is a single callable capability exposed to an agent.
type Tool interface {
	Name() string
	Description() string
	// Execute runs the tool against the given JSON input, scoped to
	// one session.
	Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error)
}

// Registry holds the set of tools available to an agent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// ErrUnknownTool is returned when invoking a tool name that was never
// registered.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}
