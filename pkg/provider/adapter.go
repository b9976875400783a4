// Package provider defines the adapter contract every LLM backend implements
// and the registry the manager resolves providers through.
package provider

import (
	"context"

	"github.com/lumachat/llmcore/pkg/llm"
)

// EmitFunc consumes normalized events as an adapter produces them. Returning
// an error aborts the invocation; the adapter must stop emitting.
type EmitFunc func(llm.StreamEvent) error

// Adapter translates canonical chat requests into one provider's wire
// protocol and that provider's raw frames back into normalized events.
// Adapters know nothing about orchestration.
//
// Invoke emits zero or more delta events followed by exactly one Done, or
// returns an error without emitting Done. No event may be emitted after Done
// or after Invoke returns. Failures are reported as *llm.Error with the
// appropriate kind so callers can apply retry policy.
type Adapter interface {
	Name() string
	Capabilities() llm.Capabilities
	Invoke(ctx context.Context, req *llm.ChatRequest, emit EmitFunc) error
}

// CheckRequest runs the fail-fast validation shared by all adapters:
// structural request checks plus the capability gate, both before any
// network activity.
func CheckRequest(a Adapter, req *llm.ChatRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return a.Capabilities().Check(req.Options)
}

// MapContextError converts context termination into the error taxonomy.
// Timeout stays retryable so the manager may re-dispatch when nothing was
// delivered yet; cancellation never is.
func MapContextError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch ctx.Err() {
	case context.Canceled:
		return llm.WrapError(llm.KindCancelled, false, err)
	case context.DeadlineExceeded:
		return llm.WrapError(llm.KindTimeout, true, err)
	}
	return err
}
