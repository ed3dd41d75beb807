package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flowstack/sessioncore/internal/agentloop"
	"github.com/flowstack/sessioncore/internal/agentmemory"
	"github.com/flowstack/sessioncore/internal/llmclient"
	"github.com/flowstack/sessioncore/internal/toolkit"
	"github.com/flowstack/sessioncore/pkg/models"
)

func newTestExecutor(t *testing.T, registry *toolkit.Registry, responses ...models.MemoryMessage) *Executor {
	t.Helper()
	executorTools := toolkit.NewExecutor(registry, toolkit.DefaultExecutorOptions())
	client := llmclient.NewFakeClient(responses...)
	loop := agentloop.New(agentmemory.NewInMemoryStore(), client, executorTools, agentloop.Options{})
	return New(loop, nil, "claude-sonnet-4-20250514")
}

func TestExecutor_ExecuteStep_CompletesNormally(t *testing.T) {
	registry := toolkit.NewRegistry()
	e := newTestExecutor(t, registry, models.MemoryMessage{Role: models.RoleAssistant, Content: "done with the step"})

	plan := &models.Plan{Goal: "ship it"}
	step := &models.Step{ID: "1", Description: "write code", Status: models.StepPending}

	waiting, _, err := e.ExecuteStep(context.Background(), "agent-1", "session-1", plan, step, nil)
	if err != nil {
		t.Fatalf("ExecuteStep() error = %v", err)
	}
	if waiting {
		t.Fatal("expected waiting = false")
	}
	if step.Status != models.StepCompleted {
		t.Errorf("step.Status = %v, want completed", step.Status)
	}
	if step.Result != "done with the step" {
		t.Errorf("step.Result = %q", step.Result)
	}
}

func TestExecutor_ExecuteStep_SuspendsOnAskUser(t *testing.T) {
	registry := toolkit.NewRegistry()
	registry.Register(&toolkit.AskUserTool{})
	e := newTestExecutor(t, registry, models.MemoryMessage{
		Role: models.RoleAssistant,
		ToolCalls: []models.ToolCall{
			{ID: "call-1", Name: "message_ask_user", Input: json.RawMessage(`{"text":"which branch?"}`)},
		},
	})

	plan := &models.Plan{Goal: "ship it"}
	step := &models.Step{ID: "1", Description: "pick a branch", Status: models.StepPending}

	var events []agentloop.ToolEvent
	waiting, _, err := e.ExecuteStep(context.Background(), "agent-1", "session-1", plan, step, func(ev agentloop.ToolEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("ExecuteStep() error = %v", err)
	}
	if !waiting {
		t.Fatal("expected waiting = true")
	}
	if step.Status != models.StepRunning {
		t.Errorf("step.Status = %v, want running (left in-flight while suspended)", step.Status)
	}
	if len(events) != 1 || events[0].Stage != models.ToolCalled {
		t.Errorf("events = %+v, want exactly one ToolCalled event (the tool is never actually invoked)", events)
	}
}

func TestExecutor_ExecuteStep_NotifyUserDoesNotSuspend(t *testing.T) {
	registry := toolkit.NewRegistry()
	registry.Register(&toolkit.NotifyUserTool{})
	e := newTestExecutor(t, registry,
		models.MemoryMessage{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "message_notify_user", Input: json.RawMessage(`{"text":"working on it"}`)},
			},
		},
		models.MemoryMessage{Role: models.RoleAssistant, Content: "all done"},
	)

	plan := &models.Plan{Goal: "ship it"}
	step := &models.Step{ID: "1", Description: "write code", Status: models.StepPending}

	waiting, _, err := e.ExecuteStep(context.Background(), "agent-1", "session-1", plan, step, nil)
	if err != nil {
		t.Fatalf("ExecuteStep() error = %v", err)
	}
	if waiting {
		t.Fatal("expected waiting = false for message_notify_user")
	}
	if step.Status != models.StepCompleted || step.Result != "all done" {
		t.Errorf("step = %+v, want completed with result 'all done'", step)
	}
}

func TestExecutor_ExecuteStep_FailurePropagatesToStep(t *testing.T) {
	registry := toolkit.NewRegistry()
	e := newTestExecutor(t, registry)
	e.loop = agentloop.New(agentmemory.NewInMemoryStore(), &failingClient{}, toolkit.NewExecutor(registry, toolkit.DefaultExecutorOptions()), agentloop.Options{})

	plan := &models.Plan{Goal: "ship it"}
	step := &models.Step{ID: "1", Description: "write code", Status: models.StepPending}

	_, _, err := e.ExecuteStep(context.Background(), "agent-1", "session-1", plan, step, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if step.Status != models.StepFailed {
		t.Errorf("step.Status = %v, want failed", step.Status)
	}
	if step.Error == "" {
		t.Error("expected step.Error to be set")
	}
}

type failingClient struct{}

func (failingClient) Ask(ctx context.Context, req llmclient.Request) (models.MemoryMessage, error) {
	return models.MemoryMessage{}, errAlwaysFails
}

var errAlwaysFails = &fakeErr{"ask always fails"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }
