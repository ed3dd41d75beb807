package models

import "time"

// SessionStatus tracks where a session sits in its lifecycle.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionWaiting   SessionStatus = "waiting"
	SessionCompleted SessionStatus = "completed"
)

// Session is a single conversation thread bound to one agent and, once
// a sandbox has been provisioned for it, one sandbox.
type Session struct {
	ID                 string        `json:"id"`
	AgentID            string        `json:"agent_id"`
	SandboxID          string        `json:"sandbox_id,omitempty"`
	TaskID             string        `json:"task_id,omitempty"`
	Title              string        `json:"title,omitempty"`
	Status             SessionStatus `json:"status"`
	UnreadMessageCount int           `json:"unread_message_count"`
	LatestMessage      string        `json:"latest_message,omitempty"`
	LatestMessageAt    time.Time     `json:"latest_message_at,omitempty"`
	// Attachments carries the metadata (names/references) bound at
	// session creation. The blobs themselves live in whatever external
	// document store/object store the deployment configures — this
	// module stores only the reference, never the bytes.
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSession creates a session in the pending state for the given
// agent, optionally binding attachment metadata supplied at creation.
func NewSession(id, agentID string, attachments ...string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		AgentID:     agentID,
		Status:      SessionPending,
		Attachments: attachments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Agent is the configured LLM participant driving a session's planner
// and executor roles.
type Agent struct {
	ID           string    `json:"id"`
	ModelName    string    `json:"model_name"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"max_tokens"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
