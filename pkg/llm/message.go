package llm

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request emitted by a model asking the caller to
// execute a named external capability. Arguments are opaque to the core; the
// tool executor validates them.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult is the outcome of executing one ToolCall. CallID must match a
// prior ToolCall in the same round. Content carries the JSON-encoded payload
// on success or an error description on failure.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name,omitempty"`
	OK      bool   `json:"ok"`
	Content string `json:"content"`
}

// ToolDefinition is the canonical tool schema. Each provider adapter derives
// its own wire format from this shape.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Message is one element of a conversation. The core reads and appends
// messages; it never mutates history it did not produce.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolResult is set on role=tool messages and references the call the
	// content answers.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolMessage builds the role=tool message carrying one tool result.
func ToolMessage(res ToolResult) Message {
	content := res.Content
	if !res.OK && content == "" {
		content = `{"error":"tool execution failed"}`
	}
	r := res
	return Message{Role: RoleTool, Content: content, ToolResult: &r}
}

// CloneMessages copies a message slice so callers keep ownership of theirs.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
