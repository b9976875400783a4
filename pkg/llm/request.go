package llm

import (
	"strings"
	"time"
)

// ToolFailurePolicy controls how a failed tool execution affects the turn.
type ToolFailurePolicy string

const (
	// ToolFailureFeedBack reports the failure to the model as a tool message
	// and lets it continue.
	ToolFailureFeedBack ToolFailurePolicy = "feed_back"
	// ToolFailureFailFast terminates the turn on the first failed tool.
	ToolFailureFailFast ToolFailurePolicy = "fail_fast"
)

// Options carry per-request configuration. Sampling parameters are passed
// through to the provider untouched.
type Options struct {
	Stream          bool              `json:"stream"`
	EnableTools     bool              `json:"enable_tools"`
	EnableReasoning bool              `json:"enable_reasoning"`
	MaxRounds       int               `json:"max_rounds,omitempty"`
	SystemPrompt    string            `json:"system_prompt,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	TopP            *float64          `json:"top_p,omitempty"`
	MaxTokens       int               `json:"max_tokens,omitempty"`
	ToolFailure     ToolFailurePolicy `json:"tool_failure,omitempty"`
	Timeout         time.Duration     `json:"-"`
}

// ChatRequest describes one turn to dispatch. Treated as immutable once
// handed to the manager; the orchestrator works on its own copy.
type ChatRequest struct {
	ConversationID string           `json:"conversation_id,omitempty"`
	Provider       string           `json:"provider"`
	Model          string           `json:"model"`
	Messages       []Message        `json:"messages"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	Options        Options          `json:"options"`
}

// Validate checks the fields the core depends on before any network activity.
func (r *ChatRequest) Validate() error {
	if r == nil {
		return Errorf(KindConfiguration, false, "request is nil")
	}
	if strings.TrimSpace(r.Provider) == "" {
		return Errorf(KindConfiguration, false, "provider is required")
	}
	if strings.TrimSpace(r.Model) == "" {
		return Errorf(KindConfiguration, false, "model is required")
	}
	if len(r.Messages) == 0 {
		return Errorf(KindConfiguration, false, "messages are empty")
	}
	return nil
}

// Clone produces a request copy whose message slice the caller may append to.
func (r *ChatRequest) Clone() *ChatRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Messages = CloneMessages(r.Messages)
	out.Tools = append([]ToolDefinition(nil), r.Tools...)
	return &out
}
