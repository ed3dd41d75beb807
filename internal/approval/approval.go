// Package approval owns the suspension contract between the
// message_ask_user tool and the rest of the session pipeline:
// recognizing the tool by name (grounded on the teacher's convention
// of special-casing a handful of well-known tool names rather than
// driving control flow off a generic schema field) and decoding the
// question, any attachments, and the "suggest the user take over"
// hint the original system's InteractionAgent carries alongside the
// question text.
package approval

import (
	"encoding/json"
	"fmt"

	"github.com/flowstack/sessioncore/pkg/models"
)

// ToolName is the tool the executor's agent loop intercepts instead of
// running normally.
const ToolName = "message_ask_user"

// IsAskUser reports whether name is the suspension-triggering tool.
func IsAskUser(name string) bool {
	return name == ToolName
}

// Request is the decoded message_ask_user call: the question to show
// the user, any attachments to display alongside it, and whether the
// agent is suggesting the user take over the sandbox directly (e.g. to
// complete a login form the agent cannot see past).
type Request struct {
	Question        string   `json:"text"`
	Attachments      []string `json:"attachments,omitempty"`
	SuggestTakeover  bool     `json:"suggest_user_takeover,omitempty"`
}

// Parse decodes a message_ask_user tool call's raw input. The call is
// intercepted before it ever reaches AskUserTool.Execute (see
// internal/agentloop's Suspend hook), so this is the only place that
// sees the model's arguments.
func Parse(call models.ToolCall) (Request, error) {
	var req Request
	if len(call.Input) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(call.Input, &req); err != nil {
		return Request{}, fmt.Errorf("approval: decode message_ask_user input: %w", err)
	}
	return req, nil
}
