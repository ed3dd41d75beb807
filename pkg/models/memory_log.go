package models

// AgentMemory is the ordered message log kept for one (agent, role)
// pair. A role's memory is used to reconstruct the chat-completion
// request sent to the LLM on each agentic-loop iteration.
type AgentMemory struct {
	AgentID  string          `json:"agent_id"`
	Role     string          `json:"role"` // "planner" or "execution"
	Messages []MemoryMessage `json:"messages"`
}

// Effective returns the view of Messages used to build an LLM request:
// the latest system message (if any), prepended, followed by every
// non-system message in original order. Ported from the Python
// Memory.get_messages_with_latest_system — later system writes
// replace earlier ones in the effective view without removing them
// from the underlying log.
func (m *AgentMemory) Effective() []MemoryMessage {
	var latestSystem *MemoryMessage
	rest := make([]MemoryMessage, 0, len(m.Messages))
	for i := range m.Messages {
		msg := m.Messages[i]
		if msg.Role == RoleSystem {
			copy := msg
			latestSystem = &copy
			continue
		}
		rest = append(rest, msg)
	}
	if latestSystem == nil {
		return rest
	}
	out := make([]MemoryMessage, 0, len(rest)+1)
	out = append(out, *latestSystem)
	out = append(out, rest...)
	return out
}

// LastAssistant returns the last assistant message in the log, and
// whether one exists — used by roll-back to find unanswered tool
// calls.
func (m *AgentMemory) LastAssistant() (*MemoryMessage, bool) {
	for i := len(m.Messages) - 1; i >= 0; i-- {
		if m.Messages[i].Role == RoleAssistant {
			return &m.Messages[i], true
		}
		if m.Messages[i].Role == RoleUser {
			return nil, false
		}
	}
	return nil, false
}

// Append adds a message to the end of the log, prepending the system
// prompt first if the log is currently empty.
func (m *AgentMemory) Append(systemPrompt string, msg MemoryMessage) {
	if len(m.Messages) == 0 && systemPrompt != "" {
		m.Messages = append(m.Messages, MemoryMessage{Role: RoleSystem, Content: systemPrompt})
	}
	m.Messages = append(m.Messages, msg)
}
