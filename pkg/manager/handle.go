package manager

import (
	"context"
	"sync"

	"github.com/lumachat/llmcore/pkg/llm"
)

// Handle tracks one in-flight turn: its event stream, its cancellation, and
// eventually its result.
type Handle struct {
	ConversationID string
	TurnID         string

	events chan llm.StreamEvent
	cancel context.CancelFunc

	mu     sync.Mutex
	done   chan struct{}
	result *llm.TurnResult
	err    error
}

func newHandle(convID, turnID string, buffer int) *Handle {
	return &Handle{
		ConversationID: convID,
		TurnID:         turnID,
		events:         make(chan llm.StreamEvent, buffer),
		done:           make(chan struct{}),
	}
}

// Events yields normalized events in arrival order. The channel closes after
// the terminal event; nothing is delivered afterwards.
func (h *Handle) Events() <-chan llm.StreamEvent { return h.events }

// Cancel aborts the in-flight adapter call and any running tool executions.
// Events already delivered remain valid; nothing is retracted.
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Result blocks until the turn resolves and returns its snapshot.
func (h *Handle) Result() *llm.TurnResult {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err blocks until the turn resolves and reports its terminal error, nil on
// Completed and MaxRounds outcomes.
func (h *Handle) Err() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// push forwards one event to the consumer, dropping nothing: delivery blocks
// until the consumer keeps up or the turn context ends.
func (h *Handle) push(ctx context.Context, ev llm.StreamEvent) error {
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryPush delivers without blocking; used for the terminal event when the
// turn context is already gone and a stuck consumer must not leak the worker.
func (h *Handle) tryPush(ev llm.StreamEvent) {
	select {
	case h.events <- ev:
	default:
	}
}

func (h *Handle) finish(result *llm.TurnResult, err error) {
	h.mu.Lock()
	h.result = result
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

func (h *Handle) close() {
	close(h.events)
}
