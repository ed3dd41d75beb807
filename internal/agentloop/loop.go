// Package agentloop implements the generic ask-execute-repeat control
// flow shared by the planner and executor roles, grounded on the
// original system's BaseAgent.execute/ask_with_messages/roll_back
// methods and the teacher's internal/agent iteration loop.
package agentloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowstack/sessioncore/internal/agentmemory"
	ctxwindow "github.com/flowstack/sessioncore/internal/context"
	"github.com/flowstack/sessioncore/internal/llmclient"
	"github.com/flowstack/sessioncore/internal/toolkit"
	"github.com/flowstack/sessioncore/pkg/models"
)

// DefaultMaxIterations bounds how many ask/tool-call round trips a
// single Run performs before giving up, matching the original system's
// BaseAgent.max_iterations default.
const DefaultMaxIterations = 30

// ErrMaxIterations is returned when a loop exhausts its iteration
// budget without the model producing a final, tool-call-free message.
var ErrMaxIterations = errors.New("agentloop: max iterations exceeded")

// ToolEvent describes one observed point in a tool call's lifecycle,
// emitted so callers can translate it into a session event.
type ToolEvent struct {
	Stage  models.ToolEventStage
	Call   models.ToolCall
	Result *models.ToolResult // nil when Stage == ToolCalled
}

// Hooks lets a role customize loop behavior without the loop needing
// to know about sessions, planners, or executors.
type Hooks struct {
	// OnToolEvent, if set, is called at both the calling and called
	// stages of every tool invocation.
	OnToolEvent func(ToolEvent)

	// Suspend, if set, is consulted right after the calling-stage
	// event for every tool call. If it returns true, Run stops
	// immediately without invoking the tool or appending a result —
	// the tool call is left unanswered in memory so a later RollBack
	// can resolve it. The executor role uses this to intercept
	// message_ask_user.
	Suspend func(models.ToolCall) bool
}

// Loop drives the ask -> (optional tool call) -> tool result -> ask
// cycle for one (agentID, role) memory log.
type Loop struct {
	memory        agentmemory.Store
	llm           llmclient.Client
	tools         *toolkit.Executor
	maxIterations int
}

// Options configures a Loop.
type Options struct {
	MaxIterations int
}

// New returns a Loop backed by the given memory store, LLM client, and
// tool executor.
func New(memory agentmemory.Store, llm llmclient.Client, tools *toolkit.Executor, opts Options) *Loop {
	max := opts.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}
	return &Loop{memory: memory, llm: llm, tools: tools, maxIterations: max}
}

// Request bundles the inputs to a single Run call.
type Request struct {
	AgentID        string
	Role           string
	SessionID      string
	SystemPrompt   string
	Model          string
	Temperature    float64
	MaxTokens      int
	Tools          []llmclient.ToolSchema
	ResponseFormat *llmclient.ResponseFormat
}

// Outcome is the result of a Run call.
type Outcome struct {
	Message models.MemoryMessage

	// Suspended reports whether Run stopped early because
	// Hooks.Suspend intercepted a tool call, leaving it unanswered in
	// memory. ToolCall is populated in that case.
	Suspended bool
	ToolCall  models.ToolCall
}

// Run appends userMessage (when non-empty) to the role's memory, then
// repeatedly asks the model and executes at most one tool call per
// reply — mirroring the original system's restriction to the first
// tool_call of a turn — until the model replies with no tool calls, a
// hook suspends the loop, or maxIterations is spent.
func (l *Loop) Run(ctx context.Context, req Request, userMessage string, hooks Hooks) (Outcome, error) {
	if userMessage != "" {
		if err := l.memory.Append(ctx, req.AgentID, req.Role, req.SystemPrompt, models.MemoryMessage{
			Role:    models.RoleUser,
			Content: userMessage,
		}); err != nil {
			return Outcome{}, fmt.Errorf("agentloop: append user message: %w", err)
		}
	}

	for i := 0; i < l.maxIterations; i++ {
		mem, err := l.memory.Load(ctx, req.AgentID, req.Role)
		if err != nil {
			return Outcome{}, fmt.Errorf("agentloop: load memory: %w", err)
		}

		reply, err := l.llm.Ask(ctx, llmclient.Request{
			Model:          req.Model,
			Temperature:    req.Temperature,
			MaxTokens:      req.MaxTokens,
			Messages:       fitToWindow(req.Model, req.MaxTokens, mem.Effective()),
			Tools:          req.Tools,
			ResponseFormat: req.ResponseFormat,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("agentloop: ask failed: %w", err)
		}

		if len(reply.ToolCalls) > 1 {
			reply.ToolCalls = reply.ToolCalls[:1]
		}

		if err := l.memory.Append(ctx, req.AgentID, req.Role, req.SystemPrompt, reply); err != nil {
			return Outcome{}, fmt.Errorf("agentloop: append reply: %w", err)
		}

		if len(reply.ToolCalls) == 0 {
			return Outcome{Message: reply}, nil
		}

		call := reply.ToolCalls[0]
		if hooks.OnToolEvent != nil {
			hooks.OnToolEvent(ToolEvent{Stage: models.ToolCalled, Call: call})
		}

		if hooks.Suspend != nil && hooks.Suspend(call) {
			return Outcome{Message: reply, Suspended: true, ToolCall: call}, nil
		}

		result := l.tools.Invoke(ctx, req.SessionID, call)
		if hooks.OnToolEvent != nil {
			hooks.OnToolEvent(ToolEvent{Stage: models.ToolExecuted, Call: call, Result: &result})
		}

		if err := l.memory.Append(ctx, req.AgentID, req.Role, req.SystemPrompt, toolResultMessage(call, result)); err != nil {
			return Outcome{}, fmt.Errorf("agentloop: append tool result: %w", err)
		}
	}

	return Outcome{}, ErrMaxIterations
}

// fitToWindow drops the oldest non-pinned messages so the request fits
// the model's context window, reserving room for the reply itself.
// Tool calls and their results are always pinned together, since an
// LLM request with one half of a call/result pair missing is invalid;
// the system message and the most recent few turns are pinned too, so
// truncation only ever eats into the oldest freestanding history.
func fitToWindow(model string, maxTokens int, messages []models.MemoryMessage) []models.MemoryMessage {
	if len(messages) == 0 {
		return messages
	}
	window := ctxwindow.NewWindowForModel(model)
	budget := window.Remaining() - maxTokens
	if budget <= 0 {
		budget = window.Remaining()
	}

	asCtx := make([]ctxwindow.Message, len(messages))
	for i, m := range messages {
		content := m.Content
		for _, tc := range m.ToolCalls {
			content += string(tc.Input)
		}
		asCtx[i] = ctxwindow.Message{
			Role:     string(m.Role),
			Content:  content,
			IsSystem: m.Role == models.RoleSystem,
			Pinned:   len(m.ToolCalls) > 0 || m.ToolCallID != "",
			Index:    i,
		}
	}

	truncator := ctxwindow.NewTruncator(ctxwindow.TruncateOldest, budget)
	truncator.SetKeepLast(4)
	kept, result := truncator.Truncate(asCtx)
	if result.RemovedCount == 0 {
		return messages
	}

	out := make([]models.MemoryMessage, len(kept))
	for i, k := range kept {
		out[i] = messages[k.Index]
	}
	return out
}

func toolResultMessage(call models.ToolCall, result models.ToolResult) models.MemoryMessage {
	content := result.Message
	if !result.Success {
		content = result.Error
		if content == "" {
			content = "tool call failed"
		}
	}
	return models.MemoryMessage{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

// RollBack resolves a tool call left unanswered by a previous
// suspended Run — for example after a session resumes from the
// waiting state — by appending a synthesized successful tool-result
// message for it, so the next Run call sees a clean, alternating
// message sequence. A no-op when the role's last assistant message
// carried no tool call. Mirrors the original system's
// BaseAgent.roll_back.
func (l *Loop) RollBack(ctx context.Context, agentID, role string) error {
	mem, err := l.memory.Load(ctx, agentID, role)
	if err != nil {
		return fmt.Errorf("agentloop: load memory: %w", err)
	}
	last, ok := mem.LastAssistant()
	if !ok || len(last.ToolCalls) == 0 {
		return nil
	}
	call := last.ToolCalls[0]
	return l.memory.Append(ctx, agentID, role, "", models.MemoryMessage{
		Role:       models.RoleTool,
		ToolCallID: call.ID,
		Name:       call.Name,
	})
}
