// Package anthropic implements a provider adapter backed by the official
// Anthropic Go SDK.
package anthropic

import (
	"context"
	"errors"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/provider"
	"github.com/lumachat/llmcore/pkg/telemetry"
)

const (
	defaultMaxTokens = 4096
	// Minimum the API accepts for extended thinking, with headroom.
	thinkingBudget = 2048
)

// Options configure the adapter.
type Options struct {
	// Name is the registry key. Defaults to "anthropic".
	Name    string
	APIKey  string
	BaseURL string
}

// Adapter wraps the official Anthropic SDK.
type Adapter struct {
	name   string
	client anthropicsdk.Client
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds an Anthropic adapter.
func New(opts Options) *Adapter {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	name := opts.Name
	if name == "" {
		name = "anthropic"
	}
	return &Adapter{name: name, client: anthropicsdk.NewClient(reqOpts...)}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true, Tools: true, Reasoning: true}
}

// Invoke runs one model call and emits normalized events.
func (a *Adapter) Invoke(ctx context.Context, req *llm.ChatRequest, emit provider.EmitFunc) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.anthropic.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "anthropic"),
			attribute.String("llm.model", req.Model),
			attribute.Bool("llm.stream", req.Options.Stream),
		)...),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	params, err := a.buildParams(req)
	if err != nil {
		return err
	}
	if req.Options.Stream {
		return a.invokeStream(ctx, params, emit)
	}
	return a.invokeUnary(ctx, params, emit)
}

func (a *Adapter) buildParams(req *llm.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	systemBlocks, messages := convertMessages(req.Messages, req.Options.SystemPrompt)
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropicsdk.Float(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		params.TopP = anthropicsdk.Float(*req.Options.TopP)
	}
	if req.Options.EnableTools {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropicsdk.MessageNewParams{}, &llm.Error{Kind: llm.KindConfiguration, Message: "anthropic: convert tools", Cause: err}
		}
		if len(tools) > 0 {
			params.Tools = tools
		}
	}
	if req.Options.EnableReasoning {
		params.Thinking = anthropicsdk.ThinkingConfigParamOfEnabled(thinkingBudget)
	}
	return params, nil
}

func (a *Adapter) invokeUnary(ctx context.Context, params anthropicsdk.MessageNewParams, emit provider.EmitFunc) error {
	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return classifyError(ctx, err)
	}
	return emitMessage(*message, emit)
}

func (a *Adapter) invokeStream(ctx context.Context, params anthropicsdk.MessageNewParams, emit provider.EmitFunc) error {
	stream := a.client.Messages.NewStreaming(ctx, params)
	message := anthropicsdk.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return &llm.Error{Kind: llm.KindProtocol, Message: "anthropic: accumulate stream", Cause: err}
		}

		switch ev := event.AsAny().(type) {
		case anthropicsdk.ContentBlockStartEvent:
			// Tool use blocks announce id and name up front; the input
			// arrives as JSON fragments on later delta events.
			if block, ok := ev.ContentBlock.AsAny().(anthropicsdk.ToolUseBlock); ok {
				err := emit(llm.ToolDeltaEvent(llm.ToolCallDelta{
					Index: int(ev.Index),
					ID:    block.ID,
					Name:  block.Name,
				}))
				if err != nil {
					return err
				}
			}
		case anthropicsdk.ContentBlockDeltaEvent:
			var err error
			switch delta := ev.Delta.AsAny().(type) {
			case anthropicsdk.TextDelta:
				err = emit(llm.TextEvent(delta.Text))
			case anthropicsdk.ThinkingDelta:
				err = emit(llm.ReasoningEvent(delta.Thinking))
			case anthropicsdk.InputJSONDelta:
				err = emit(llm.ToolDeltaEvent(llm.ToolCallDelta{
					Index:     int(ev.Index),
					Arguments: delta.PartialJSON,
				}))
			}
			if err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return classifyError(ctx, err)
	}

	return emit(llm.DoneEvent(mapStopReason(message.StopReason), convertUsage(message.Usage)))
}

// emitMessage replays a complete (non-streamed) message as events.
func emitMessage(msg anthropicsdk.Message, emit provider.EmitFunc) error {
	var calls []llm.ToolCall
	for _, block := range msg.Content {
		var err error
		switch content := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if content.Text != "" {
				err = emit(llm.TextEvent(content.Text))
			}
		case anthropicsdk.ThinkingBlock:
			if content.Thinking != "" {
				err = emit(llm.ReasoningEvent(content.Thinking))
			}
		case anthropicsdk.ToolUseBlock:
			args := content.Input
			if len(args) == 0 {
				args = []byte(`{}`)
			}
			calls = append(calls, llm.ToolCall{
				ID:        content.ID,
				Name:      content.Name,
				Arguments: args,
			})
		}
		if err != nil {
			return err
		}
	}
	if len(calls) > 0 {
		if err := emit(llm.ToolCallsReadyEvent(calls)); err != nil {
			return err
		}
	}
	return emit(llm.DoneEvent(mapStopReason(msg.StopReason), convertUsage(msg.Usage)))
}

func mapStopReason(reason anthropicsdk.StopReason) llm.FinishReason {
	if reason == anthropicsdk.StopReasonToolUse {
		return llm.FinishToolCalls
	}
	return llm.FinishNormal
}

func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return provider.MapContextError(ctx, err)
	}
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return provider.ClassifyStatus("anthropic", apiErr.StatusCode, "", err)
	}
	return &llm.Error{Kind: llm.KindNetwork, Message: "anthropic: request failed", Retryable: true, Cause: err}
}
