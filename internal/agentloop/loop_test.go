package agentloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flowstack/sessioncore/internal/agentmemory"
	"github.com/flowstack/sessioncore/internal/llmclient"
	"github.com/flowstack/sessioncore/internal/toolkit"
	"github.com/flowstack/sessioncore/pkg/models"
)

func newTestLoop(t *testing.T, client llmclient.Client) (*Loop, *toolkit.Registry) {
	t.Helper()
	registry := toolkit.NewRegistry()
	executor := toolkit.NewExecutor(registry, toolkit.DefaultExecutorOptions())
	return New(agentmemory.NewInMemoryStore(), client, executor, Options{}), registry
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes input" }
func (echoTool) Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error) {
	return models.ToolResult{Success: true, Message: string(input)}, nil
}

func TestLoop_Run_NoToolCallsReturnsImmediately(t *testing.T) {
	client := llmclient.NewFakeClient(models.MemoryMessage{Role: models.RoleAssistant, Content: "done"})
	loop, _ := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), Request{AgentID: "a1", Role: "execution", SessionID: "s1"}, "hello", Hooks{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Suspended {
		t.Fatal("expected Suspended = false")
	}
	if out.Message.Content != "done" {
		t.Errorf("Message.Content = %q, want done", out.Message.Content)
	}
}

func TestLoop_Run_ExecutesToolThenContinues(t *testing.T) {
	client := llmclient.NewFakeClient(
		models.MemoryMessage{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "echo", Input: json.RawMessage(`{"x":1}`)},
			},
		},
		models.MemoryMessage{Role: models.RoleAssistant, Content: "finished"},
	)
	loop, registry := newTestLoop(t, client)
	registry.Register(echoTool{})

	var events []ToolEvent
	out, err := loop.Run(context.Background(), Request{AgentID: "a1", Role: "execution", SessionID: "s1"}, "go", Hooks{
		OnToolEvent: func(e ToolEvent) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Message.Content != "finished" {
		t.Errorf("Message.Content = %q, want finished", out.Message.Content)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Stage != models.ToolCalled || events[1].Stage != models.ToolExecuted {
		t.Errorf("unexpected event stages: %+v", events)
	}
	if !events[1].Result.Success {
		t.Errorf("expected successful tool result, got %+v", events[1].Result)
	}
}

func TestLoop_Run_SuspendsOnHook(t *testing.T) {
	client := llmclient.NewFakeClient(models.MemoryMessage{
		Role: models.RoleAssistant,
		ToolCalls: []models.ToolCall{
			{ID: "call-1", Name: "message_ask_user", Input: json.RawMessage(`{"text":"which?"}`)},
		},
	})
	loop, registry := newTestLoop(t, client)
	registry.Register(&toolkit.AskUserTool{})

	out, err := loop.Run(context.Background(), Request{AgentID: "a1", Role: "execution", SessionID: "s1"}, "go", Hooks{
		Suspend: func(call models.ToolCall) bool { return toolkit.IsAskUser(call.Name) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Suspended {
		t.Fatal("expected Suspended = true")
	}
	if out.ToolCall.Name != "message_ask_user" {
		t.Errorf("ToolCall.Name = %q, want message_ask_user", out.ToolCall.Name)
	}

	mem, err := loop.memory.Load(context.Background(), "a1", "execution")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	last, ok := mem.LastAssistant()
	if !ok || len(last.ToolCalls) == 0 {
		t.Fatal("expected the suspended tool call to remain unanswered in memory")
	}
}

func TestLoop_Run_ToolFailureFeedsBackIntoMemory(t *testing.T) {
	client := llmclient.NewFakeClient(
		models.MemoryMessage{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "missing", Input: json.RawMessage(`{}`)},
			},
		},
		models.MemoryMessage{Role: models.RoleAssistant, Content: "recovered"},
	)
	loop, _ := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), Request{AgentID: "a1", Role: "execution", SessionID: "s1"}, "go", Hooks{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Message.Content != "recovered" {
		t.Errorf("Message.Content = %q, want recovered", out.Message.Content)
	}

	mem, err := loop.memory.Load(context.Background(), "a1", "execution")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	found := false
	for _, m := range mem.Messages {
		if m.Role == models.RoleTool && m.ToolCallID == "call-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a tool-role message recording the failed invocation")
	}
}

func TestLoop_RollBack_ResolvesUnansweredToolCall(t *testing.T) {
	client := llmclient.NewFakeClient()
	loop, _ := newTestLoop(t, client)
	ctx := context.Background()

	if err := loop.memory.Append(ctx, "a1", "execution", "", models.MemoryMessage{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := loop.memory.Append(ctx, "a1", "execution", "", models.MemoryMessage{
		Role: models.RoleAssistant,
		ToolCalls: []models.ToolCall{
			{ID: "call-1", Name: "message_ask_user"},
		},
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := loop.RollBack(ctx, "a1", "execution"); err != nil {
		t.Fatalf("RollBack() error = %v", err)
	}

	mem, err := loop.memory.Load(ctx, "a1", "execution")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	last := mem.Messages[len(mem.Messages)-1]
	if last.Role != models.RoleTool || last.ToolCallID != "call-1" {
		t.Fatalf("last message = %+v, want synthesized tool result for call-1", last)
	}
}

func TestLoop_Run_TruncatesOldestHistoryToFitWindow(t *testing.T) {
	client := llmclient.NewFakeClient(models.MemoryMessage{Role: models.RoleAssistant, Content: "done"})
	loop, _ := newTestLoop(t, client)
	ctx := context.Background()

	// A long-running role log: one old turn per message, long enough
	// that a tiny model window can't hold all of them plus the new
	// user message appended by Run.
	for i := 0; i < 50; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if err := loop.memory.Append(ctx, "a1", "execution", "you are an assistant", models.MemoryMessage{
			Role:    role,
			Content: "this is a reasonably long turn of conversation history, repeated to burn tokens",
		}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	_, err := loop.Run(ctx, Request{AgentID: "a1", Role: "execution", SessionID: "s1", Model: "gpt-4", MaxTokens: 8000}, "one more turn", Hooks{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	calls := client.Calls()
	if len(calls) != 1 {
		t.Fatalf("len(calls) = %d, want 1", len(calls))
	}
	sent := calls[0].Messages
	mem, err := loop.memory.Load(ctx, "a1", "execution")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	full := mem.Effective()
	if len(sent) >= len(full) {
		t.Fatalf("len(sent) = %d, want fewer than the full effective log (%d) — gpt-4's 8192-token window shouldn't fit all of it", len(sent), len(full))
	}
	if sent[0].Role != models.RoleSystem {
		t.Errorf("sent[0].Role = %v, want system (the system message must survive truncation)", sent[0].Role)
	}
	if last := sent[len(sent)-1]; last.Content != "one more turn" {
		t.Errorf("last sent message = %q, want the newest turn to survive truncation", last.Content)
	}
}

func TestLoop_RollBack_NoopWithoutPendingCall(t *testing.T) {
	client := llmclient.NewFakeClient()
	loop, _ := newTestLoop(t, client)
	ctx := context.Background()

	if err := loop.memory.Append(ctx, "a1", "execution", "", models.MemoryMessage{Role: models.RoleAssistant, Content: "done"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := loop.RollBack(ctx, "a1", "execution"); err != nil {
		t.Fatalf("RollBack() error = %v", err)
	}

	mem, err := loop.memory.Load(ctx, "a1", "execution")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(mem.Messages) != 1 {
		t.Fatalf("len(mem.Messages) = %d, want 1 (no synthesized message appended)", len(mem.Messages))
	}
}
