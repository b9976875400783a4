// Package orchestrator drives the multi-round function-call loop: dispatch a
// request, stream the response, execute requested tools, resubmit results,
// until the model produces a final answer or a round limit is hit.
package orchestrator

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/provider"
	"github.com/lumachat/llmcore/pkg/stream"
	"github.com/lumachat/llmcore/pkg/telemetry"
)

// State names the orchestration phases of one turn.
type State string

const (
	StateIdle           State = "idle"
	StateDispatching    State = "dispatching"
	StateStreaming      State = "streaming"
	StateToolsPending   State = "tools_pending"
	StateExecutingTools State = "executing_tools"
	StateResubmitting   State = "resubmitting"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// ToolRunner is the external tool-executor collaborator. The orchestrator
// invokes capabilities by name and never inspects argument semantics.
type ToolRunner interface {
	Definitions() []llm.ToolDefinition
	Execute(ctx context.Context, call llm.ToolCall) (llm.ToolResult, error)
}

const defaultMaxRounds = 5

// Config bounds one orchestrator instance.
type Config struct {
	MaxRounds   int
	ToolFailure llm.ToolFailurePolicy
	Logger      *slog.Logger
}

func (c Config) maxRounds(req *llm.ChatRequest) int {
	if req.Options.MaxRounds > 0 {
		return req.Options.MaxRounds
	}
	if c.MaxRounds > 0 {
		return c.MaxRounds
	}
	return defaultMaxRounds
}

func (c Config) failurePolicy(req *llm.ChatRequest) llm.ToolFailurePolicy {
	if req.Options.ToolFailure != "" {
		return req.Options.ToolFailure
	}
	if c.ToolFailure != "" {
		return c.ToolFailure
	}
	return llm.ToolFailureFeedBack
}

// Orchestrator runs turns against one adapter. Instances are stateless across
// turns; per-turn state lives on the stack of Run.
type Orchestrator struct {
	adapter provider.Adapter
	tools   ToolRunner
	cfg     Config
	logger  *slog.Logger
}

// New wires an orchestrator. tools may be nil when the request disables tool
// calls.
func New(adapter provider.Adapter, tools ToolRunner, cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{adapter: adapter, tools: tools, cfg: cfg, logger: logger}
}

// Run executes one turn. Events are forwarded to emit as they arrive; the
// terminal event (Done or Error) is always delivered before Run returns. The
// returned TurnResult carries whatever accumulated, including on failure.
// MaxRounds is reported through the result, not as an error.
func (o *Orchestrator) Run(ctx context.Context, req *llm.ChatRequest, emit provider.EmitFunc) (*llm.TurnResult, error) {
	t := &turn{
		orch:   o,
		emit:   emit,
		result: &llm.TurnResult{},
		state:  StateIdle,
	}

	if err := provider.CheckRequest(o.adapter, req); err != nil {
		return t.fail(err)
	}

	work := req.Clone()
	prepareMessages(work)
	if work.Options.EnableTools && len(work.Tools) == 0 && o.tools != nil {
		work.Tools = o.tools.Definitions()
	}

	maxRounds := o.cfg.maxRounds(work)
	policy := o.cfg.failurePolicy(work)

	for round := 1; ; round++ {
		t.result.Rounds = round
		res, err := t.dispatch(ctx, work, round)
		if err != nil {
			return t.fail(err)
		}

		t.result.Text += res.Message.Content
		t.result.Reasoning += res.Message.Reasoning
		t.result.Usage = t.result.Usage.Add(res.Usage)
		work.Messages = append(work.Messages, res.Message)

		wantsTools := res.Finish == llm.FinishToolCalls && len(res.ToolCalls) > 0
		if !wantsTools || !work.Options.EnableTools {
			t.transition(StateCompleted)
			t.result.Finish = llm.FinishNormal
			return t.result, nil
		}

		if round >= maxRounds {
			// Bounded completion, not an error: return the best partial
			// result without executing the pending calls.
			t.transition(StateCompleted)
			t.result.Finish = llm.FinishMaxRounds
			if err := t.send(llm.DoneEvent(llm.FinishMaxRounds, t.result.Usage), round); err != nil {
				return t.result, err
			}
			return t.result, nil
		}

		t.transition(StateToolsPending)
		executed, err := o.executeCalls(ctx, res.ToolCalls, policy, round, t)
		t.result.ToolCalls = append(t.result.ToolCalls, executed...)
		if err != nil {
			return t.fail(err)
		}

		t.transition(StateResubmitting)
		for _, ex := range executed {
			work.Messages = append(work.Messages, llm.ToolMessage(ex.Result))
		}
	}
}

// prepareMessages applies the per-turn system prompt override: the override
// replaces any system messages supplied by the conversation history.
func prepareMessages(req *llm.ChatRequest) {
	prompt := req.Options.SystemPrompt
	if prompt == "" {
		return
	}
	msgs := make([]llm.Message, 0, len(req.Messages)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: prompt})
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}
	req.Messages = msgs
}

// turn owns the mutable state of one Run call.
type turn struct {
	orch         *Orchestrator
	emit         provider.EmitFunc
	result       *llm.TurnResult
	state        State
	sent         bool
	terminalSent bool
}

func (t *turn) transition(next State) {
	if t.state == next {
		return
	}
	t.orch.logger.Debug("turn state", "from", string(t.state), "to", string(next))
	t.state = next
}

// dispatch runs one adapter invocation through a fresh aggregator.
func (t *turn) dispatch(ctx context.Context, req *llm.ChatRequest, round int) (_ stream.RoundResult, err error) {
	t.transition(StateDispatching)

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.round",
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", t.orch.adapter.Name()),
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.round", round),
		)...),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	invokeCtx := ctx
	cancel := context.CancelFunc(func() {})
	if req.Options.Timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, req.Options.Timeout)
	}
	defer cancel()

	agg := stream.New(func(ev llm.StreamEvent) error {
		t.transition(StateStreaming)
		return t.send(ev, round)
	}, t.orch.logger)

	err = t.orch.adapter.Invoke(invokeCtx, req, agg.Emit)
	if err != nil {
		return stream.RoundResult{}, provider.MapContextError(invokeCtx, err)
	}
	if !agg.Terminal() {
		return stream.RoundResult{}, llm.Errorf(llm.KindProtocol, false, "adapter returned without a terminal event")
	}
	return agg.Result(), nil
}

// send forwards one event to the caller, stamping the round and tracking
// whether a terminal event already went out.
func (t *turn) send(ev llm.StreamEvent, round int) error {
	ev.Round = round
	t.sent = true
	if ev.Type == llm.EventError {
		t.terminalSent = true
	}
	if t.emit == nil {
		return nil
	}
	return t.emit(ev)
}

// fail finalizes the turn on an error, preserving partial output. When
// events already reached the caller, a terminal Error event is delivered
// (unless one already went out); when nothing was delivered yet, the caller
// above owns terminal delivery so its retry policy can still re-dispatch.
func (t *turn) fail(err error) (*llm.TurnResult, error) {
	t.transition(StateFailed)
	e := llm.WrapError(llm.KindProtocol, false, err)
	t.result.Err = e
	if e.Kind == llm.KindCancelled {
		t.result.Finish = llm.FinishCancelled
	} else {
		t.result.Finish = llm.FinishError
	}
	if t.sent && !t.terminalSent {
		_ = t.send(llm.ErrorEvent(e), t.result.Rounds)
	}
	return t.result, e
}
