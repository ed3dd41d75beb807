// Package flow implements the plan/act state machine that drives a
// single session's agent loop from IDLE through PLANNING, EXECUTING,
// UPDATING, and COMPLETED, grounded almost unchanged on the original
// system's flows/plan_act.py state machine — of everything ported
// from the Python original, this file tracks it the most closely,
// since plan_act.py already is the reference implementation for this
// component.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowstack/sessioncore/internal/agentloop"
	"github.com/flowstack/sessioncore/internal/approval"
	"github.com/flowstack/sessioncore/internal/executor"
	"github.com/flowstack/sessioncore/internal/planner"
	"github.com/flowstack/sessioncore/pkg/models"
)

// Status names one state of the plan/act state machine.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPlanning  Status = "planning"
	StatusExecuting Status = "executing"
	StatusUpdating  Status = "updating"
	StatusCompleted Status = "completed"
)

// Emit receives every event a Flow produces, in the order they
// happen, so the caller can assign outbox ids, persist them, and
// apply side-effects.
type Emit func(*models.SessionEvent)

// Flow drives the planner and executor through one session's
// plan/act cycle. A Flow is not safe for concurrent use; the task
// runner that owns it guarantees at most one Run at a time.
type Flow struct {
	AgentID   string
	SessionID string
	Planner   *planner.Planner
	Executor  *executor.Executor

	status Status
	plan   *models.Plan
}

// New returns a Flow starting in the idle state. plan may be non-nil
// to resume a session with an in-progress plan.
func New(agentID, sessionID string, p *planner.Planner, e *executor.Executor, plan *models.Plan) *Flow {
	return &Flow{AgentID: agentID, SessionID: sessionID, Planner: p, Executor: e, status: StatusIdle, plan: plan}
}

// Plan returns the flow's current plan, or nil if none has been
// created yet.
func (f *Flow) Plan() *models.Plan { return f.plan }

// Status returns the flow's current state.
func (f *Flow) Status() Status { return f.status }

// IsDone reports whether the flow has returned to idle after
// completing a plan.
func (f *Flow) IsDone() bool { return f.status == StatusIdle && f.plan != nil && f.plan.Done() }

// RollBack resolves any tool call left unanswered by a previously
// suspended run, in both the executor's and the planner's memory.
// Callers invoke this before Run when resuming a session that was not
// already PENDING.
func (f *Flow) RollBack(ctx context.Context) error {
	if err := f.Executor.RollBack(ctx, f.AgentID); err != nil {
		return fmt.Errorf("flow: roll back executor: %w", err)
	}
	if err := f.Planner.RollBack(ctx, f.AgentID); err != nil {
		return fmt.Errorf("flow: roll back planner: %w", err)
	}
	return nil
}

// Resume sets the flow's starting state from the session status
// observed by the caller before it transitions the session to
// RUNNING: a session that was RUNNING re-enters PLANNING (a new
// message needs a plan); a session that was WAITING re-enters
// EXECUTING (a user reply resumes the in-flight step). A session that
// was PENDING leaves the flow in its default IDLE state.
func (f *Flow) Resume(wasRunning, wasWaiting bool) {
	switch {
	case wasRunning:
		f.status = StatusPlanning
	case wasWaiting:
		f.status = StatusExecuting
	}
}

// Run drives the state machine until it suspends on a Wait event or
// reaches COMPLETED (having emitted Done), calling emit for every
// event produced along the way. On a Wait event the flow returns
// immediately without emitting Done — the caller (the task runner)
// is responsible for moving the session to the waiting status.
func (f *Flow) Run(ctx context.Context, message string, emit Emit) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch f.status {
		case StatusIdle:
			f.status = StatusPlanning

		case StatusPlanning:
			plan, err := f.Planner.CreatePlan(ctx, f.AgentID, f.SessionID, message)
			if err != nil {
				emit(models.NewErrorEvent(err.Error()))
				return fmt.Errorf("flow: create plan: %w", err)
			}
			f.plan = plan
			emit(models.NewTitleEvent(plan.Title))
			emit(models.NewMessageEvent(models.RoleAssistant, plan.GreetingMessage))
			emit(models.NewPlanEvent(plan, models.PlanEventCreated))
			f.status = StatusExecuting

		case StatusExecuting:
			if f.plan == nil {
				err := fmt.Errorf("flow: entered executing with no plan")
				emit(models.NewErrorEvent(err.Error()))
				return err
			}
			f.plan.Status = models.PlanActive
			step, _, ok := f.plan.NextStep()
			if !ok {
				f.status = StatusCompleted
				continue
			}

			step.Status = models.StepRunning
			emit(models.NewStepEvent(step))
			waiting, ask, err := f.Executor.ExecuteStep(ctx, f.AgentID, f.SessionID, f.plan, step, func(ev agentloop.ToolEvent) {
				// message_ask_user never reaches a normal tool-call
				// lifecycle: the executor's Suspend hook stops the
				// loop right after the calling-stage event, so the
				// only event that can arrive here for it is that one.
				// Per spec it is re-emitted as the assistant's
				// question text, not as a Tool event.
				if approval.IsAskUser(ev.Call.Name) {
					return
				}
				emit(toolSessionEvent(ev))
			})
			if err != nil {
				emit(models.NewStepEvent(step))
				emit(models.NewErrorEvent(err.Error()))
				return fmt.Errorf("flow: execute step: %w", err)
			}
			if waiting {
				emit(models.NewMessageEvent(models.RoleAssistant, ask.Question))
				emit(models.NewWaitEvent(ask.Attachments, ask.SuggestTakeover))
				return nil
			}
			emit(models.NewStepEvent(step))
			f.status = StatusUpdating

		case StatusUpdating:
			plan, err := f.Planner.UpdatePlan(ctx, f.AgentID, f.SessionID, f.plan)
			if err != nil {
				emit(models.NewErrorEvent(err.Error()))
				return fmt.Errorf("flow: update plan: %w", err)
			}
			f.plan = plan
			emit(models.NewPlanEvent(plan, models.PlanEventUpdated))
			f.status = StatusExecuting

		case StatusCompleted:
			f.plan.Status = models.PlanCompleted
			emit(models.NewPlanEvent(f.plan, models.PlanEventCompleted))
			emit(models.NewDoneEvent())
			f.status = StatusIdle
			return nil
		}
	}
}

// toolSessionEvent converts an agent loop tool event into the session
// event the task runner appends. tool_content is left as the tool's
// own reported message or error; the task runner enriches it further
// for shell/file/search tools before persisting.
func toolSessionEvent(ev agentloop.ToolEvent) *models.SessionEvent {
	se := &models.SessionEvent{
		Type:       models.EventTool,
		Timestamp:  time.Now().UTC(),
		ToolCallID: ev.Call.ID,
		ToolName:   ev.Call.Name,
		ToolStage:  ev.Stage,
	}
	if len(ev.Call.Input) > 0 {
		var input map[string]any
		if err := json.Unmarshal(ev.Call.Input, &input); err == nil {
			se.ToolInput = input
		}
	}
	if ev.Result != nil {
		se.ToolIsError = !ev.Result.Success
		if ev.Result.Success {
			se.ToolContent = ev.Result.Message
		} else {
			se.ToolContent = ev.Result.Error
		}
	}
	return se
}
