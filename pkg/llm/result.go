package llm

import "time"

// ExecutedToolCall pairs a request the model emitted with the result the
// executor produced.
type ExecutedToolCall struct {
	Call     ToolCall      `json:"call"`
	Result   ToolResult    `json:"result"`
	Round    int           `json:"round"`
	Duration time.Duration `json:"duration_ms"`
}

// TurnResult is the immutable snapshot of one full turn. Partial output is
// kept even when the turn failed so the caller can decide whether to persist
// it.
type TurnResult struct {
	Text      string             `json:"text"`
	Reasoning string             `json:"reasoning,omitempty"`
	ToolCalls []ExecutedToolCall `json:"tool_calls,omitempty"`
	Rounds    int                `json:"rounds"`
	Finish    FinishReason       `json:"finish"`
	Usage     Usage              `json:"usage"`
	Err       *Error             `json:"-"`
}

// Failed reports whether the turn ended on an error or cancellation.
// MaxRounds is a bounded-completion outcome, not a failure.
func (r *TurnResult) Failed() bool {
	return r != nil && (r.Finish == FinishError || r.Finish == FinishCancelled)
}
