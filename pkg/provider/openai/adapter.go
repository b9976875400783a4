// Package openai implements a provider adapter backed by the official
// OpenAI Go SDK.
package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/provider"
	"github.com/lumachat/llmcore/pkg/telemetry"
)

// Options configure the adapter.
type Options struct {
	// Name is the registry key. Defaults to "openai"; gateways exposing
	// the same wire format under another identity override it.
	Name   string
	APIKey string
	// BaseURL overrides the default API endpoint, for proxies and
	// OpenAI-compatible gateways that speak the SDK wire format exactly.
	BaseURL string
}

// Adapter wraps the official OpenAI SDK.
type Adapter struct {
	name   string
	client openaisdk.Client
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds an OpenAI adapter.
func New(opts Options) *Adapter {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	name := opts.Name
	if name == "" {
		name = "openai"
	}
	return &Adapter{name: name, client: openaisdk.NewClient(reqOpts...)}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true, Tools: true}
}

// Invoke runs one model call and emits normalized events.
func (a *Adapter) Invoke(ctx context.Context, req *llm.ChatRequest, emit provider.EmitFunc) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.openai.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "openai"),
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

func (a *Adapter) buildParams(req *llm.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	messages, err := convertMessages(req.Messages, req.Options.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, &llm.Error{Kind: llm.KindConfiguration, Message: "openai: convert messages", Cause: err}
	}
	params := openaisdk.ChatCompletionNewParams{
		Messages: messages,
		Model:    openaisdk.ChatModel(req.Model),
	}
	if req.Options.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature != nil {
		params.Temperature = openaisdk.Float(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		params.TopP = openaisdk.Float(*req.Options.TopP)
	}
	if req.Options.EnableTools {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return openaisdk.ChatCompletionNewParams{}, &llm.Error{Kind: llm.KindConfiguration, Message: "openai: convert tools", Cause: err}
		}
		params.Tools = tools
	}
	return params, nil
}

func (a *Adapter) invokeUnary(ctx context.Context, params openaisdk.ChatCompletionNewParams, emit provider.EmitFunc) error {
	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return classifyError(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return llm.Errorf(llm.KindProtocol, false, "openai: response has no choices")
	}
	msg := completion.Choices[0].Message
	if msg.Content != "" {
		if err := emit(llm.TextEvent(msg.Content)); err != nil {
			return err
		}
	}
	finish := llm.FinishNormal
	if len(msg.ToolCalls) > 0 {
		calls, err := convertToolCalls(msg.ToolCalls)
		if err != nil {
			return err
		}
		if err := emit(llm.ToolCallsReadyEvent(calls)); err != nil {
			return err
		}
		finish = llm.FinishToolCalls
	}
	return emit(llm.DoneEvent(finish, convertUsage(completion.Usage)))
}

func (a *Adapter) invokeStream(ctx context.Context, params openaisdk.ChatCompletionNewParams, emit provider.EmitFunc) error {
	params.StreamOptions = openaisdk.ChatCompletionStreamOptionsParam{
		IncludeUsage: openaisdk.Bool(true),
	}
	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openaisdk.ChatCompletionAccumulator{}
	finish := llm.FinishNormal
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if err := emit(llm.TextEvent(choice.Delta.Content)); err != nil {
				return err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			err := emit(llm.ToolDeltaEvent(llm.ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}))
			if err != nil {
				return err
			}
		}
		if choice.FinishReason == "tool_calls" || choice.FinishReason == "function_call" {
			finish = llm.FinishToolCalls
		}
	}
	if err := stream.Err(); err != nil {
		return classifyError(ctx, err)
	}
	if len(acc.Choices) == 0 {
		return llm.Errorf(llm.KindProtocol, false, "openai: stream produced no choices")
	}
	return emit(llm.DoneEvent(finish, convertUsage(acc.Usage)))
}

func convertToolCalls(calls []openaisdk.ChatCompletionMessageToolCallUnion) ([]llm.ToolCall, error) {
	out := make([]llm.ToolCall, 0, len(calls))
	for idx, call := range calls {
		fn := call.AsFunction()
		if fn.Function.Name == "" {
			return nil, llm.Errorf(llm.KindProtocol, false, "openai: tool_calls[%d] missing function name", idx)
		}
		args := fn.Function.Arguments
		if args == "" {
			args = "{}"
		}
		out = append(out, llm.ToolCall{
			ID:        fn.ID,
			Name:      fn.Function.Name,
			Arguments: []byte(args),
		})
	}
	return out, nil
}

// classifyError folds SDK failures into the shared taxonomy.
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return provider.MapContextError(ctx, err)
	}
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return provider.ClassifyStatus("openai", apiErr.StatusCode, apiErr.Message, err)
	}
	return &llm.Error{Kind: llm.KindNetwork, Message: "openai: request failed", Retryable: true, Cause: err}
}
