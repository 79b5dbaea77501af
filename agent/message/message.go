// Package message defines the canonical conversation message shared by the router,
// the normalizer and the wire layer.
package message

import "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"

type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

const ToolCallTypeFunction = "function"

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
	Type     string       `json:"type"`
}

// Message is a role-tagged variant. ToolCalls holds the pending calls of an AI
// message, or the reconstructed call envelope of a Tool message. Name, ToolCallID
// and Payload are only set on Tool messages.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Payload    any        `json:"payload,omitempty"`
}

func System(id, content string) Message {
	return Message{ID: id, Role: RoleSystem, Content: content}
}

func Human(id, content string) Message {
	return Message{ID: id, Role: RoleHuman, Content: content}
}

func AI(id, content string, calls ...ToolCall) Message {
	return Message{ID: id, Role: RoleAI, Content: content, ToolCalls: cloneCalls(calls)}
}

func Tool(id, name, callID, content string, payload any, envelope ToolCall) Message {
	return Message{
		ID:         id,
		Role:       RoleTool,
		Content:    content,
		ToolCalls:  []ToolCall{envelope},
		Name:       name,
		ToolCallID: callID,
		Payload:    payload,
	}
}

// PlainRole maps the canonical role to the chat role remote agents expect.
func (m Message) PlainRole() string {
	switch m.Role {
	case RoleHuman:
		return "user"
	case RoleAI:
		return "assistant"
	default:
		return string(m.Role)
	}
}

func (m Message) Plain() contract.PlainMessage {
	return contract.PlainMessage{Role: m.PlainRole(), Content: m.Content}
}

func cloneCalls(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return append([]ToolCall(nil), calls...)
}
