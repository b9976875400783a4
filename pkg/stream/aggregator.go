// Package stream assembles one adapter invocation's event sequence into a
// round snapshot while passing events through to the caller unchanged.
package stream

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/lumachat/llmcore/pkg/llm"
)

// RoundResult is the immutable outcome of one invocation: the assistant
// message it produced, the finalized tool calls, and how the round ended.
type RoundResult struct {
	Message   llm.Message
	ToolCalls []llm.ToolCall
	Finish    llm.FinishReason
	Usage     llm.Usage
}

type callBuffer struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// Aggregator consumes the events of exactly one adapter invocation. Text and
// reasoning deltas are concatenated strictly in arrival order. Fragmented
// tool-call deltas are buffered per fragment index (the correlation key both
// wire dialects stream), so interleaved calls reassemble independently.
// Events are forwarded to the sink as they arrive; nothing is re-emitted
// after a terminal event.
type Aggregator struct {
	sink   func(llm.StreamEvent) error
	logger *slog.Logger

	text      strings.Builder
	reasoning strings.Builder
	buffers   map[int]*callBuffer
	order     []int
	ready     []llm.ToolCall
	announced bool

	finish   llm.FinishReason
	usage    llm.Usage
	terminal bool
}

// New builds an aggregator forwarding events to sink. A nil sink collects
// without forwarding (blocking, non-streamed turns).
func New(sink func(llm.StreamEvent) error, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		sink:    sink,
		logger:  logger,
		buffers: map[int]*callBuffer{},
	}
}

// Emit implements provider.EmitFunc. It returns the sink's error unchanged so
// adapters stop producing when the caller has gone away.
func (a *Aggregator) Emit(ev llm.StreamEvent) error {
	if a.terminal {
		// Never surface anything after Done or a terminal Error.
		a.logger.Warn("event after terminal dropped", "type", ev.Type)
		return nil
	}
	switch ev.Type {
	case llm.EventTextDelta:
		a.text.WriteString(ev.Text)
	case llm.EventReasoningDelta:
		a.reasoning.WriteString(ev.Text)
	case llm.EventToolCallDelta:
		if ev.ToolDelta != nil {
			a.absorb(*ev.ToolDelta)
		}
	case llm.EventToolCallsReady:
		a.ready = dedupeByID(ev.ToolCalls, a.logger)
		a.announced = true
		ev.ToolCalls = a.ready
	case llm.EventDone:
		return a.finishRound(ev)
	case llm.EventError:
		a.terminal = true
	}
	return a.forward(ev)
}

func (a *Aggregator) absorb(d llm.ToolCallDelta) {
	buf := a.buffers[d.Index]
	if buf == nil {
		buf = &callBuffer{index: d.Index}
		a.buffers[d.Index] = buf
		a.order = append(a.order, d.Index)
	}
	if d.ID != "" {
		buf.id = d.ID
	}
	if d.Name != "" {
		buf.name = d.Name
	}
	buf.args.WriteString(d.Arguments)
}

// finishRound finalizes pending buffers, announces assembled calls when the
// adapter did not, and forwards Done last. Buffers are only finalized when
// the round actually ended on tool calls; on any other finish the provider
// abandoned them, and surfacing calls nothing will execute would leak a
// ToolCallsReady event the caller cannot act on.
func (a *Aggregator) finishRound(done llm.StreamEvent) error {
	a.finish = done.Finish
	if done.Usage != nil {
		a.usage = *done.Usage
	}
	if !a.announced && len(a.order) > 0 {
		if a.finish != llm.FinishToolCalls {
			a.logger.Warn("discarding unclaimed tool call buffers", "count", len(a.order))
		} else {
			calls, err := a.assemble()
			if err != nil {
				a.terminal = true
				e := llm.WrapError(llm.KindProtocol, false, err)
				if ferr := a.forward(llm.ErrorEvent(e)); ferr != nil {
					return ferr
				}
				return e
			}
			if len(calls) > 0 {
				a.ready = calls
				a.announced = true
				if err := a.forward(llm.ToolCallsReadyEvent(calls)); err != nil {
					return err
				}
			}
		}
	}
	a.terminal = true
	return a.forward(done)
}

func (a *Aggregator) assemble() ([]llm.ToolCall, error) {
	calls := make([]llm.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		buf := a.buffers[idx]
		if strings.TrimSpace(buf.name) == "" {
			return nil, llm.Errorf(llm.KindProtocol, false, "tool call fragment %d has no name", idx)
		}
		raw := strings.TrimSpace(buf.args.String())
		if raw == "" {
			raw = "{}"
		}
		if !json.Valid([]byte(raw)) {
			return nil, llm.Errorf(llm.KindProtocol, false, "tool call %s has malformed arguments", buf.name)
		}
		calls = append(calls, llm.ToolCall{
			ID:        buf.id,
			Name:      buf.name,
			Arguments: json.RawMessage(raw),
		})
	}
	return dedupeByID(calls, a.logger), nil
}

// dedupeByID drops earlier duplicates when a provider reuses a call id; the
// later call in arrival order wins and the anomaly is logged, never fatal.
func dedupeByID(calls []llm.ToolCall, logger *slog.Logger) []llm.ToolCall {
	seen := map[string]int{}
	out := make([]llm.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.ID != "" {
			if prev, dup := seen[call.ID]; dup {
				logger.Warn("duplicate tool call id, later wins", "id", call.ID, "name", call.Name)
				out[prev] = call
				continue
			}
			seen[call.ID] = len(out)
		}
		out = append(out, call)
	}
	return out
}

func (a *Aggregator) forward(ev llm.StreamEvent) error {
	if a.sink == nil {
		return nil
	}
	return a.sink(ev)
}

// Result snapshots the round. Valid once Emit has processed a terminal event.
func (a *Aggregator) Result() RoundResult {
	msg := llm.Message{
		Role:      llm.RoleAssistant,
		Content:   a.text.String(),
		Reasoning: a.reasoning.String(),
		ToolCalls: a.ready,
	}
	return RoundResult{
		Message:   msg,
		ToolCalls: a.ready,
		Finish:    a.finish,
		Usage:     a.usage,
	}
}

// Terminal reports whether the invocation has ended.
func (a *Aggregator) Terminal() bool { return a.terminal }
