package model

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model.
//
// Signature is an opaque token some models attach to a call and expect back
// unchanged with the history.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Signature []byte         `json:"-"`
}

// Message is a single conversation turn.
//
// ToolCalls is only set on assistant messages that invoke tools.
// ToolCallID and Name are only set on tool results and point back at the
// ToolCall being answered.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// UserMessage returns a user turn with the given text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// ToolResult returns a tool turn answering call.
func ToolResult(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

// HasToolCalls reports whether the message requests any tool invocation.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
