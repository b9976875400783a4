package llm

// EventType discriminates StreamEvent variants.
type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventToolCallDelta  EventType = "tool_call_delta"
	EventToolCallsReady EventType = "tool_calls_ready"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// FinishReason explains why a round or turn ended.
type FinishReason string

const (
	FinishNormal    FinishReason = "normal"
	FinishToolCalls FinishReason = "tool_calls"
	FinishMaxRounds FinishReason = "max_rounds_exceeded"
	FinishError     FinishReason = "error"
	FinishCancelled FinishReason = "cancelled"
)

// ToolCallDelta is a fragment of a streaming tool call. A single call's
// arguments may arrive split across many chunks; Index correlates fragments
// belonging to the same call within one invocation. ID and Name are set on
// the fragment that first announces the call and may be empty afterwards.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Usage reports provider token accounting, best effort.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add folds another usage sample into u.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// StreamEvent is the normalized streaming unit every adapter produces.
// Exactly one payload field is populated according to Type. Events are
// emitted in arrival order; Done and Error are terminal for an invocation.
type StreamEvent struct {
	Type      EventType      `json:"type"`
	Round     int            `json:"round,omitempty"`
	Text      string         `json:"text,omitempty"`
	ToolDelta *ToolCallDelta `json:"tool_delta,omitempty"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Finish    FinishReason   `json:"finish,omitempty"`
	Usage     *Usage         `json:"usage,omitempty"`
	Err       *Error         `json:"-"`
	// ErrData mirrors Err for transport serialization.
	ErrData *ErrorData `json:"error,omitempty"`
}

// ErrorData is the wire representation of an Error.
type ErrorData struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// Terminal reports whether no further event may follow ev in its invocation.
func (ev StreamEvent) Terminal() bool {
	return ev.Type == EventDone || ev.Type == EventError
}

// TextEvent builds a text fragment event.
func TextEvent(fragment string) StreamEvent {
	return StreamEvent{Type: EventTextDelta, Text: fragment}
}

// ReasoningEvent builds a reasoning-trace fragment event.
func ReasoningEvent(fragment string) StreamEvent {
	return StreamEvent{Type: EventReasoningDelta, Text: fragment}
}

// ToolDeltaEvent wraps a streaming tool-call fragment.
func ToolDeltaEvent(delta ToolCallDelta) StreamEvent {
	d := delta
	return StreamEvent{Type: EventToolCallDelta, ToolDelta: &d}
}

// ToolCallsReadyEvent announces the complete tool calls of a round.
func ToolCallsReadyEvent(calls []ToolCall) StreamEvent {
	return StreamEvent{Type: EventToolCallsReady, ToolCalls: calls}
}

// DoneEvent marks normal end of an invocation.
func DoneEvent(finish FinishReason, usage Usage) StreamEvent {
	u := usage
	return StreamEvent{Type: EventDone, Finish: finish, Usage: &u}
}

// ErrorEvent marks abnormal end of an invocation.
func ErrorEvent(err *Error) StreamEvent {
	ev := StreamEvent{Type: EventError, Err: err}
	if err != nil {
		ev.ErrData = &ErrorData{Kind: err.Kind, Message: err.Message, Retryable: err.Retryable}
	}
	return ev
}
