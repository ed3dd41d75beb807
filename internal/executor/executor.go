// Package executor implements the execution role of the plan/act
// control flow: running a single plan step to completion and emitting
// its tool-call lifecycle, grounded on the original system's
// ExecutionAgent.execute_step and the teacher's per-role agent
// wiring.
//
// One deliberate addition over the retrieved ExecutionAgent snapshot:
// a call to message_ask_user suspends the step instead of being
// treated as an ordinary tool result. The original snapshot registers
// message_ask_user as a plain MessageTool with no special handling,
// which would otherwise let the loop immediately invoke it, append a
// synthetic result, and keep going — never actually waiting on the
// user. Suspending here is what lets a session move to the waiting
// state and later resume with the answer.
package executor

import (
	"context"
	"fmt"

	"github.com/flowstack/sessioncore/internal/agentloop"
	"github.com/flowstack/sessioncore/internal/approval"
	"github.com/flowstack/sessioncore/internal/llmclient"
	"github.com/flowstack/sessioncore/pkg/models"
)

// Role names this agent's memory partition.
const Role = "execution"

// SystemPrompt instructs the model to work a single step to
// completion using the tools it has been given.
const SystemPrompt = `You are the execution agent in an autonomous task-execution system.
You are given one step of a larger plan at a time. Use the available tools to complete
it fully before replying in plain text. Call message_notify_user to report progress
without stopping, and message_ask_user only when you genuinely need the user's input
before you can continue.`

const stepPromptTemplate = `Overall goal: %s

Current step: %s

Complete this step using the tools available to you, then reply in plain text
summarizing what you did.`

// Executor drives the execution role's agent loop, one plan step at a
// time.
type Executor struct {
	loop  *agentloop.Loop
	tools []llmclient.ToolSchema
	model string
}

// New returns an Executor that runs loop's ask/respond cycle with the
// given tool schemas advertised to the model.
func New(loop *agentloop.Loop, tools []llmclient.ToolSchema, model string) *Executor {
	return &Executor{loop: loop, tools: tools, model: model}
}

// ExecuteStep runs step to completion, or until the model calls
// message_ask_user. It mutates step in place (status, result, error)
// and reports whether the step suspended on a user question rather
// than finishing normally; when it suspended, ask carries the decoded
// question, attachments, and suggest-takeover hint for the flow to
// attach to the resulting WaitEvent.
func (e *Executor) ExecuteStep(ctx context.Context, agentID, sessionID string, plan *models.Plan, step *models.Step, onToolEvent func(agentloop.ToolEvent)) (waiting bool, ask approval.Request, err error) {
	step.Status = models.StepRunning
	message := fmt.Sprintf(stepPromptTemplate, plan.Goal, step.Description)

	out, err := e.loop.Run(ctx, agentloop.Request{
		AgentID:      agentID,
		Role:         Role,
		SessionID:    sessionID,
		SystemPrompt: SystemPrompt,
		Model:        e.model,
		Tools:        e.tools,
	}, message, agentloop.Hooks{
		OnToolEvent: onToolEvent,
		Suspend:     func(call models.ToolCall) bool { return approval.IsAskUser(call.Name) },
	})
	if err != nil {
		step.Status = models.StepFailed
		step.Error = err.Error()
		return false, approval.Request{}, fmt.Errorf("executor: execute step %s: %w", step.ID, err)
	}

	if out.Suspended {
		req, parseErr := approval.Parse(out.ToolCall)
		if parseErr != nil {
			req = approval.Request{Question: step.Description}
		}
		return true, req, nil
	}

	step.Status = models.StepCompleted
	step.Result = out.Message.Content
	return false, approval.Request{}, nil
}

// RollBack resolves any tool call left unanswered in the execution
// role's memory by a previous suspended run.
func (e *Executor) RollBack(ctx context.Context, agentID string) error {
	return e.loop.RollBack(ctx, agentID, Role)
}
