package models

import "testing"

func TestAgentMemory_Append_PrependsSystemPromptOnce(t *testing.T) {
	m := &AgentMemory{AgentID: "a1", Role: "execution"}
	m.Append("you are an executor", MemoryMessage{Role: RoleUser, Content: "hello"})
	m.Append("you are an executor", MemoryMessage{Role: RoleAssistant, Content: "hi"})

	if len(m.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(m.Messages))
	}
	if m.Messages[0].Role != RoleSystem {
		t.Errorf("Messages[0].Role = %v, want system", m.Messages[0].Role)
	}
}

func TestAgentMemory_Effective_LatestSystemWins(t *testing.T) {
	m := &AgentMemory{
		Messages: []MemoryMessage{
			{Role: RoleSystem, Content: "first prompt"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleSystem, Content: "second prompt"},
			{Role: RoleAssistant, Content: "hello"},
		},
	}

	eff := m.Effective()
	if len(eff) != 3 {
		t.Fatalf("len(Effective()) = %d, want 3", len(eff))
	}
	if eff[0].Role != RoleSystem || eff[0].Content != "second prompt" {
		t.Errorf("eff[0] = %+v, want latest system prompt first", eff[0])
	}
	if eff[1].Content != "hi" || eff[2].Content != "hello" {
		t.Errorf("non-system order not preserved: %+v", eff)
	}
}

func TestAgentMemory_LastAssistant(t *testing.T) {
	m := &AgentMemory{Messages: []MemoryMessage{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "thinking", ToolCalls: []ToolCall{{ID: "tc1", Name: "shell"}}},
	}}
	last, ok := m.LastAssistant()
	if !ok {
		t.Fatal("expected a last assistant message")
	}
	if len(last.ToolCalls) != 1 || last.ToolCalls[0].ID != "tc1" {
		t.Errorf("ToolCalls not preserved: %+v", last.ToolCalls)
	}
}

func TestAgentMemory_LastAssistant_NoneSinceLastUser(t *testing.T) {
	m := &AgentMemory{Messages: []MemoryMessage{
		{Role: RoleAssistant, Content: "old"},
		{Role: RoleUser, Content: "new question"},
	}}
	if _, ok := m.LastAssistant(); ok {
		t.Fatal("expected no assistant message after the last user message")
	}
}
