// Package llmclient defines the boundary between the agentic loop and
// whichever LLM vendor backs it, grounded on the teacher's
// internal/agent.LLMProvider interface and providers.BaseProvider retry
// helper, and on the original Python ai-manus project's
// domain/external/llm.py port (LLM.ask(messages, tools, response_format)).
//
// Only the interface and an in-memory fake live here; a concrete
// vendor adapter is an external collaborator per the system's scope
// and is wired in cmd/sessioncore.
package llmclient

import (
	"context"

	"github.com/flowstack/sessioncore/pkg/models"
)

// ResponseFormat constrains the shape of the model's reply. Only
// "json_object" is meaningful today — it is what the planner role
// requests.
type ResponseFormat struct {
	Type string
}

// ToolSchema is a single function signature advertised to the model,
// in the shape its function-calling protocol expects.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

// Request bundles everything the planner/executor's generic loop
// needs to ask the model for its next turn.
type Request struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	Messages       []models.MemoryMessage
	Tools          []ToolSchema
	ResponseFormat *ResponseFormat
}

// Client asks an LLM for a completion. Implementations must be safe
// for concurrent use — a task runner may drive several sessions'
// flows in parallel, each calling Ask independently.
type Client interface {
	// Ask sends req and returns the model's reply message. The
	// returned message's Role is always RoleAssistant. Implementations
	// must honor ctx cancellation.
	Ask(ctx context.Context, req Request) (models.MemoryMessage, error)
}

// Repairer lets jsonrepair's last-resort strategy delegate to the
// same LLM the loop already talks to, grounded on the Python
// original's llm_json_parser.py falling back to LLM.ask_json_repair.
type Repairer interface {
	RepairJSON(ctx context.Context, text string) (string, error)
}

// AsRepairer adapts a Client into a jsonrepair.Repairer by asking it,
// with no tools and no history, to fix a single blob of text.
func AsRepairer(client Client, model string) Repairer {
	return &clientRepairer{client: client, model: model}
}

type clientRepairer struct {
	client Client
	model  string
}

const repairPrompt = "The following text should be a single JSON object or array but failed to parse. " +
	"Return ONLY the corrected JSON, with no commentary or code fences:\n\n"

func (r *clientRepairer) RepairJSON(ctx context.Context, text string) (string, error) {
	resp, err := r.client.Ask(ctx, Request{
		Model:          r.model,
		MaxTokens:      2048,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
		Messages: []models.MemoryMessage{
			{Role: models.RoleUser, Content: repairPrompt + text},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
