package manager

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/orchestrator"
)

// runWithRetry retries transient dispatch failures with exponential backoff,
// but only while nothing has reached the caller: once any event is out,
// partial output exists and a later failure surfaces as the turn's terminal
// error instead of being silently re-run.
func (m *Manager) runWithRetry(ctx context.Context, orch *orchestrator.Orchestrator, req *llm.ChatRequest, h *Handle) (*llm.TurnResult, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.retry.InitialInterval
	bo.MaxInterval = m.retry.MaxInterval
	bo.Reset()

	var delivered bool
	emit := func(ev llm.StreamEvent) error {
		delivered = true
		return h.push(ctx, ev)
	}

	var result *llm.TurnResult
	var err error
	for attempt := 1; ; attempt++ {
		result, err = orch.Run(ctx, req, emit)
		if err == nil || delivered || attempt >= m.retry.MaxAttempts {
			break
		}
		if !llm.IsRetryable(err) {
			break
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		if e, ok := llm.AsError(err); ok && e.RetryAfter > wait {
			// Honor the provider's rate-limit hint when it is longer than
			// our own schedule.
			wait = e.RetryAfter
		}
		m.logger.Warn("retrying dispatch", "attempt", attempt, "wait", wait, "err", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return cancelledResult(result), llm.WrapError(llm.KindCancelled, false, ctx.Err())
		}
	}

	if err != nil && ctx.Err() == context.Canceled {
		result = cancelledResult(result)
		err = llm.WrapError(llm.KindCancelled, false, err)
	}
	// The orchestrator suppresses the terminal event for pre-stream
	// failures so retries stay invisible; once retries are exhausted the
	// terminal status still must reach the caller.
	if err != nil && !delivered {
		h.tryPush(llm.ErrorEvent(llm.WrapError(llm.KindProtocol, false, err)))
	}
	return result, err
}

func cancelledResult(result *llm.TurnResult) *llm.TurnResult {
	if result == nil {
		result = &llm.TurnResult{}
	}
	result.Finish = llm.FinishCancelled
	return result
}
