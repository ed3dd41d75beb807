package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminates the persisted session event union. These are
// the events a task runner appends to a session's outbox and that a
// chat subscriber replays back to a client.
type EventType string

const (
	EventMessage EventType = "message"
	EventTitle   EventType = "title"
	EventPlan    EventType = "plan"
	EventStep    EventType = "step"
	EventTool    EventType = "tool"
	EventError   EventType = "error"
	EventWait    EventType = "wait"
	EventDone    EventType = "done"
)

// ToolEventStage marks where in a tool call's lifecycle a ToolEvent
// was emitted.
type ToolEventStage string

const (
	ToolCalled   ToolEventStage = "calling"
	ToolExecuted ToolEventStage = "called"
)

// PlanEventStatus distinguishes why a plan event was emitted — created
// on entering PLANNING, updated on leaving UPDATING, completed once no
// steps remain — separate from Plan.Status, which only tracks whether
// the plan itself is still active or done.
type PlanEventStatus string

const (
	PlanEventCreated   PlanEventStatus = "created"
	PlanEventUpdated   PlanEventStatus = "updated"
	PlanEventCompleted PlanEventStatus = "completed"
)

// SessionEvent is the tagged-union record persisted to a session's
// event stream. Exactly one of the payload fields is populated,
// selected by Type — the same representation the teacher's
// RuntimeEvent/AgentEvent types use, chosen here because the event
// only ever round-trips through JSON once (append, then replay), so a
// Go interface hierarchy with custom (Un)MarshalJSON buys nothing over
// a flat struct.
type SessionEvent struct {
	ID        string    `json:"id,omitempty"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// EventMessage
	Role    Role   `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	// EventTitle
	Title string `json:"title,omitempty"`

	// EventPlan
	Plan       *Plan           `json:"plan,omitempty"`
	PlanStatus PlanEventStatus `json:"status,omitempty"`

	// EventStep
	Step *Step `json:"step,omitempty"`

	// EventTool
	ToolCallID   string         `json:"tool_call_id,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolStage    ToolEventStage `json:"tool_stage,omitempty"`
	ToolInput    map[string]any `json:"tool_input,omitempty"`
	ToolContent  string         `json:"tool_content,omitempty"`
	ToolIsError  bool           `json:"tool_is_error,omitempty"`

	// EventError
	ErrorMessage string `json:"error_message,omitempty"`

	// EventWait: carries the question's attachments and whether the
	// agent suggested the user take over the sandbox directly, decoded
	// from the message_ask_user call that triggered the suspension.
	WaitAttachments     []string `json:"wait_attachments,omitempty"`
	WaitSuggestTakeover bool     `json:"wait_suggest_takeover,omitempty"`
}

// IsTerminal reports whether this event ends a chat subscriber's
// polling loop (spec.md's "break on Done/Error/Wait").
func (e *SessionEvent) IsTerminal() bool {
	switch e.Type {
	case EventDone, EventError, EventWait:
		return true
	default:
		return false
	}
}

// NewMessageEvent builds a message event from the given role and text.
func NewMessageEvent(role Role, content string) *SessionEvent {
	return &SessionEvent{Type: EventMessage, Timestamp: time.Now().UTC(), Role: role, Content: content}
}

// NewErrorEvent builds an error event carrying msg.
func NewErrorEvent(msg string) *SessionEvent {
	return &SessionEvent{Type: EventError, Timestamp: time.Now().UTC(), ErrorMessage: msg}
}

// NewDoneEvent builds the terminal completion event.
func NewDoneEvent() *SessionEvent {
	return &SessionEvent{Type: EventDone, Timestamp: time.Now().UTC()}
}

// NewWaitEvent builds the suspension event emitted when the executor
// calls message_ask_user, carrying any attachments and the
// suggest-takeover hint decoded from that call.
func NewWaitEvent(attachments []string, suggestTakeover bool) *SessionEvent {
	return &SessionEvent{
		Type:                EventWait,
		Timestamp:           time.Now().UTC(),
		WaitAttachments:     attachments,
		WaitSuggestTakeover: suggestTakeover,
	}
}

// NewPlanEvent builds a plan event, tagged with why it was emitted:
// created, updated, or completed.
func NewPlanEvent(plan *Plan, status PlanEventStatus) *SessionEvent {
	return &SessionEvent{Type: EventPlan, Timestamp: time.Now().UTC(), Plan: plan, PlanStatus: status}
}

// NewStepEvent builds a step event.
func NewStepEvent(step *Step) *SessionEvent {
	return &SessionEvent{Type: EventStep, Timestamp: time.Now().UTC(), Step: step}
}

// NewTitleEvent builds a title event.
func NewTitleEvent(title string) *SessionEvent {
	return &SessionEvent{Type: EventTitle, Timestamp: time.Now().UTC(), Title: title}
}

// Marshal serializes the event for wire transport (SSE data field) or
// durable storage.
func (e *SessionEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalSessionEvent parses a stored or transmitted event back into
// a SessionEvent. Unlike the polymorphic AgentEventFactory.from_json
// in the Python original, no type switch over distinct Go structs is
// needed since the flat representation already carries every field.
func UnmarshalSessionEvent(data []byte) (*SessionEvent, error) {
	var e SessionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal session event: %w", err)
	}
	return &e, nil
}
