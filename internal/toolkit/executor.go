package toolkit

import (
	"context"
	"time"

	"github.com/flowstack/sessioncore/internal/retry"
	"github.com/flowstack/sessioncore/pkg/models"
)

// ExecutorOptions configures retry behavior for tool invocation.
// Defaults mirror the original system's three-attempt, one-second
// linear backoff policy.
type ExecutorOptions struct {
	MaxAttempts int
}

// DefaultExecutorOptions returns the default retry policy: 3 attempts,
// 1 second linear backoff, via retry.Linear.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{MaxAttempts: 3}
}

// Executor dispatches a single tool call against the registry with
// bounded retry. A tool that fails on every attempt returns a
// ToolResult with Success=false rather than an error, so the agent
// loop can feed the failure back to the model instead of aborting.
type Executor struct {
	registry *Registry
	opts     ExecutorOptions
}

// NewExecutor returns an Executor bound to registry.
func NewExecutor(registry *Registry, opts ExecutorOptions) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Executor{registry: registry, opts: opts}
}

// Invoke runs the named tool against input, retrying on error up to
// opts.MaxAttempts times with retry.Linear(attempts, 1s) backoff.
func (e *Executor) Invoke(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return models.ToolResult{
			ToolCallID: call.ID,
			Success:    false,
			Error:      (&ErrUnknownTool{Name: call.Name}).Error(),
		}
	}

	cfg := retry.Linear(e.opts.MaxAttempts, time.Second)
	result, res := retry.DoWithValue(ctx, cfg, func() (models.ToolResult, error) {
		r, err := tool.Execute(ctx, sessionID, call.Input)
		if err != nil {
			return r, err
		}
		if !r.Success {
			return r, &toolFailure{message: r.Error}
		}
		return r, nil
	})
	result.ToolCallID = call.ID
	if res.Err != nil && result.Error == "" {
		result.Success = false
		result.Error = res.Err.Error()
	}
	return result
}

type toolFailure struct {
	message string
}

func (e *toolFailure) Error() string {
	if e.message == "" {
		return "tool reported failure"
	}
	return e.message
}
