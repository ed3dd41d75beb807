package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowstack/sessioncore/pkg/models"
)

// MessageInput is the shared input shape for both message tools.
type MessageInput struct {
	Text string `json:"text"`
}

// NotifyUserTool reports progress to the user without suspending the
// session. The executor turns its result into a message event.
type NotifyUserTool struct{}

func (t *NotifyUserTool) Name() string        { return "message_notify_user" }
func (t *NotifyUserTool) Description() string { return "Sends a progress update to the user." }

func (t *NotifyUserTool) Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error) {
	var in MessageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid message input: %v", err)}, nil
	}
	return models.ToolResult{Success: true, Message: in.Text}, nil
}

// AskUserInput is message_ask_user's full argument shape: the question
// plus the original system's optional attachments and
// suggest_user_takeover hint, decoded by internal/approval at the
// point the executor intercepts the call.
type AskUserInput struct {
	Text                string   `json:"text"`
	Attachments         []string `json:"attachments,omitempty"`
	SuggestUserTakeover bool     `json:"suggest_user_takeover,omitempty"`
}

// AskUserTool requests input from the user. Unlike every other tool,
// a call to this tool is special-cased by the executor: it ends the
// agentic loop for the current turn and puts the session into the
// waiting state rather than feeding the result straight back to the
// model. Execute itself only runs in the rare case a caller invokes it
// directly rather than through the agent loop's suspension path.
type AskUserTool struct{}

func (t *AskUserTool) Name() string        { return "message_ask_user" }
func (t *AskUserTool) Description() string { return "Asks the user a question and waits for their reply." }

func (t *AskUserTool) Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error) {
	var in AskUserInput
	if err := json.Unmarshal(input, &in); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid message input: %v", err)}, nil
	}
	return models.ToolResult{Success: true, Message: in.Text, Data: map[string]any{
		"attachments":           in.Attachments,
		"suggest_user_takeover": in.SuggestUserTakeover,
	}}, nil
}

// IsAskUser reports whether name is the special ask-user tool the
// executor must intercept. Kept here (in addition to
// internal/approval.IsAskUser) so packages that only need the name
// check don't have to import the approval package.
func IsAskUser(name string) bool {
	return name == "message_ask_user"
}
