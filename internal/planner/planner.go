// Package planner implements the planning role of the plan/act control
// flow: turning a goal into an ordered step list, and revising the
// remaining steps after each executed step, grounded on the original
// system's PlannerAgent.create_plan/update_plan and the teacher's
// prompt-templated agent roles.
package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowstack/sessioncore/internal/agentloop"
	"github.com/flowstack/sessioncore/internal/jsonrepair"
	"github.com/flowstack/sessioncore/internal/llmclient"
	"github.com/flowstack/sessioncore/pkg/models"
)

// Role names this agent's memory partition.
const Role = "planner"

// SystemPrompt instructs the model to return a JSON plan object.
const SystemPrompt = `You are the planning agent in an autonomous task-execution system.
Given a user's goal, break it into a short, ordered list of concrete steps another
agent will execute one at a time. Respond with a single JSON object of the shape:
{"goal": string, "title": string, "message": string, "steps": [{"id": string, "description": string}]}.
"title" is a short session title. "message" is a one- or two-sentence greeting describing
what you are about to do. Keep the step count small; merge steps that belong together.`

const createPlanTemplate = `Create a plan for the following request:

%s`

const updatePlanTemplate = `The plan so far:
%s

The overall goal: %s

One or more steps just finished. Decide whether the remaining steps are still correct,
revise them if needed, and respond with the same JSON object shape as before, containing
only the steps that still need to run (do not repeat completed steps).`

type planResponse struct {
	Goal    string `json:"goal"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Steps   []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	} `json:"steps"`
}

// Planner drives the planner role's agent loop and parses its JSON
// replies into models.Plan values.
type Planner struct {
	loop     *agentloop.Loop
	repairer jsonrepair.Repairer
	model    string
}

// New returns a Planner that runs loop's ask/respond cycle and repairs
// malformed JSON replies via repairer (may be nil).
func New(loop *agentloop.Loop, repairer jsonrepair.Repairer, model string) *Planner {
	return &Planner{loop: loop, repairer: repairer, model: model}
}

// CreatePlan asks the model for an initial plan for goal and returns
// it with every step in the pending state.
func (p *Planner) CreatePlan(ctx context.Context, agentID, sessionID, goal string) (*models.Plan, error) {
	out, err := p.ask(ctx, agentID, sessionID, fmt.Sprintf(createPlanTemplate, goal))
	if err != nil {
		return nil, fmt.Errorf("planner: create plan: %w", err)
	}

	parsed, err := p.parse(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("planner: parse plan: %w", err)
	}

	return &models.Plan{
		Goal:            parsed.Goal,
		Title:           parsed.Title,
		GreetingMessage: parsed.Message,
		Steps:           pendingSteps(parsed),
		Status:          models.PlanActive,
	}, nil
}

// UpdatePlan asks the model to revise plan's remaining steps after a
// step has just finished. Completed and running steps before the
// first still-pending step are preserved verbatim; every step from
// that point on is replaced with the model's response, mirroring the
// original system's first_pending_index splice.
func (p *Planner) UpdatePlan(ctx context.Context, agentID, sessionID string, plan *models.Plan) (*models.Plan, error) {
	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return nil, fmt.Errorf("planner: encode steps: %w", err)
	}

	out, err := p.ask(ctx, agentID, sessionID, fmt.Sprintf(updatePlanTemplate, string(stepsJSON), plan.Goal))
	if err != nil {
		return nil, fmt.Errorf("planner: update plan: %w", err)
	}

	parsed, err := p.parse(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("planner: parse updated plan: %w", err)
	}

	firstPending := -1
	for i := range plan.Steps {
		if plan.Steps[i].Status == models.StepPending || plan.Steps[i].Status == models.StepRunning {
			firstPending = i
			break
		}
	}
	if firstPending >= 0 {
		updated := make([]models.Step, 0, firstPending+len(parsed.Steps))
		updated = append(updated, plan.Steps[:firstPending]...)
		updated = append(updated, pendingSteps(parsed)...)
		plan.Steps = updated
	}
	return plan, nil
}

// RollBack resolves any tool call left unanswered in the planner
// role's memory by a previous suspended run.
func (p *Planner) RollBack(ctx context.Context, agentID string) error {
	return p.loop.RollBack(ctx, agentID, Role)
}

func (p *Planner) ask(ctx context.Context, agentID, sessionID, message string) (string, error) {
	out, err := p.loop.Run(ctx, agentloop.Request{
		AgentID:        agentID,
		Role:           Role,
		SessionID:      sessionID,
		SystemPrompt:   SystemPrompt,
		Model:          p.model,
		ResponseFormat: &llmclient.ResponseFormat{Type: "json_object"},
	}, message, agentloop.Hooks{})
	if err != nil {
		return "", err
	}
	return out.Message.Content, nil
}

func (p *Planner) parse(ctx context.Context, text string) (*planResponse, error) {
	var parsed planResponse
	if err := jsonrepair.Parse(ctx, text, &parsed, p.repairer); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func pendingSteps(parsed *planResponse) []models.Step {
	steps := make([]models.Step, len(parsed.Steps))
	for i, s := range parsed.Steps {
		steps[i] = models.Step{ID: s.ID, Description: s.Description, Status: models.StepPending}
	}
	return steps
}
