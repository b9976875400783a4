package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/telemetry"
)

// executeCalls runs the round's tool calls. Independent calls execute
// concurrently, but results are collected and returned in request order, so
// the resubmitted message sequence matches the order the model emitted the
// calls in. The collection step is a join barrier: wait for all under the
// feed-back policy, first failure under fail-fast.
func (o *Orchestrator) executeCalls(ctx context.Context, calls []llm.ToolCall, policy llm.ToolFailurePolicy, round int, t *turn) (_ []llm.ExecutedToolCall, err error) {
	t.transition(StateExecutingTools)

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.execute_tools",
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.Int("llm.round", round),
			attribute.Int("tool.count", len(calls)),
		)...),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if o.tools == nil {
		return nil, llm.Errorf(llm.KindToolExecution, false, "model requested tool calls but no tool executors are configured")
	}

	execCtx := ctx
	cancel := context.CancelFunc(func() {})
	if policy == llm.ToolFailureFailFast {
		execCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type slot struct {
		exec llm.ExecutedToolCall
		err  error
	}
	slots := make([]slot, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			callCtx, callSpan := telemetry.StartSpan(execCtx, "tool.execute",
				trace.WithAttributes(telemetry.SanitizeAttributes(
					attribute.String("tool.name", call.Name),
					attribute.String("tool.call_id", call.ID),
				)...),
			)
			started := time.Now()
			res, err := o.tools.Execute(callCtx, call)
			telemetry.EndSpan(callSpan, err)
			slots[i] = slot{
				exec: llm.ExecutedToolCall{
					Call:     call,
					Result:   res,
					Round:    round,
					Duration: time.Since(started),
				},
				err: err,
			}
			if err != nil && policy == llm.ToolFailureFailFast {
				cancel()
			}
		}(i, call)
	}
	wg.Wait()

	out := make([]llm.ExecutedToolCall, len(slots))
	for i := range slots {
		out[i] = slots[i].exec
	}

	if err := ctx.Err(); err != nil {
		return out, llm.WrapError(llm.KindCancelled, false, err)
	}

	for i := range slots {
		if slots[i].err == nil {
			continue
		}
		if policy == llm.ToolFailureFailFast {
			return out, slots[i].err
		}
		// Feed-back policy: the failure already lives in the result
		// (OK=false) and goes back to the model as a tool message.
		o.logger.Warn("tool execution failed, feeding error back",
			"tool", calls[i].Name, "call_id", calls[i].ID, "err", slots[i].err)
	}
	return out, nil
}
