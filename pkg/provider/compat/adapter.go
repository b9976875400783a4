// Package compat implements a provider adapter for the OpenAI-compatible
// chat-completions dialect over plain HTTP. DeepSeek, Qwen, and most
// self-hosted gateways expose this protocol, differing only in base URL,
// authentication, and which optional channels (reasoning, tools) they honor.
package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/provider"
	"github.com/lumachat/llmcore/pkg/telemetry"
)

// Options configure a single compatible endpoint.
type Options struct {
	// Name is the registry key, e.g. "deepseek" or "qwen".
	Name string
	// BaseURL is the API root without the trailing /chat/completions,
	// e.g. "https://api.deepseek.com/v1".
	BaseURL string
	APIKey  string
	// Headers are added to every request, after the Authorization header.
	Headers map[string]string
	// Capabilities defaults to streaming+tools when zero.
	Capabilities llm.Capabilities
	// EnableThinking requests the reasoning_content channel on providers
	// that gate it behind a request flag (DeepSeek's thinking mode).
	EnableThinking bool
	HTTPClient     *http.Client
}

// Adapter speaks the OpenAI-compatible wire protocol.
type Adapter struct {
	opts   Options
	client *http.Client
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds an adapter for one compatible endpoint.
func New(opts Options) *Adapter {
	if opts.Capabilities == (llm.Capabilities{}) {
		opts.Capabilities = llm.Capabilities{Streaming: true, Tools: true}
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{opts: opts, client: client}
}

func (a *Adapter) Name() string { return a.opts.Name }

func (a *Adapter) Capabilities() llm.Capabilities { return a.opts.Capabilities }

// Invoke sends the request and emits normalized events. Streaming requests
// use SSE; non-streaming requests emit the full message as a single burst of
// events followed by Done.
func (a *Adapter) Invoke(ctx context.Context, req *llm.ChatRequest, emit provider.EmitFunc) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.compat.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", a.opts.Name),
			attribute.String("llm.model", req.Model),
			attribute.Bool("llm.stream", req.Options.Stream),
		)...),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	body := a.buildRequest(req)
	resp, err := a.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provider.ClassifyResponse(a.opts.Name, resp)
	}
	if body.Stream {
		return a.consumeStream(ctx, resp, emit)
	}
	return a.consumeUnary(resp, emit)
}

func (a *Adapter) buildRequest(req *llm.ChatRequest) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		Messages:    encodeMessages(req.Messages, req.Options.SystemPrompt),
		Stream:      req.Options.Stream,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		MaxTokens:   req.Options.MaxTokens,
	}
	if out.Stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if req.Options.EnableTools {
		for _, def := range req.Tools {
			out.Tools = append(out.Tools, toolParam{
				Type: "function",
				Function: functionDef{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Parameters,
				},
			})
		}
	}
	if req.Options.EnableReasoning && a.opts.EnableThinking {
		out.Thinking = &thinking{Type: "enabled"}
	}
	return out
}

func encodeMessages(msgs []llm.Message, systemPrompt string) []chatMessage {
	out := make([]chatMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range msgs {
		if systemPrompt != "" && m.Role == llm.RoleSystem {
			continue
		}
		switch m.Role {
		case llm.RoleTool:
			cm := chatMessage{Role: "tool", Content: m.Content}
			if m.ToolResult != nil {
				cm.ToolCallID = m.ToolResult.CallID
				cm.Content = m.ToolResult.Content
			}
			out = append(out, cm)
		case llm.RoleAssistant:
			cm := chatMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, toolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: functionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, cm)
		default:
			out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	return out
}

func (a *Adapter) post(ctx context.Context, body *chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindProtocol, Message: a.opts.Name + ": encode request", Cause: err}
	}
	url := strings.TrimRight(a.opts.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{Kind: llm.KindConfiguration, Message: a.opts.Name + ": build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.opts.APIKey)
	}
	for k, v := range a.opts.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, provider.MapContextError(ctx, err)
		}
		return nil, &llm.Error{Kind: llm.KindNetwork, Message: a.opts.Name + ": request failed", Retryable: true, Cause: err}
	}
	return resp, nil
}

func (a *Adapter) consumeUnary(resp *http.Response, emit provider.EmitFunc) error {
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return &llm.Error{Kind: llm.KindProtocol, Message: a.opts.Name + ": decode response", Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return llm.Errorf(llm.KindProtocol, false, "%s: response has no choices", a.opts.Name)
	}
	ch := parsed.Choices[0]
	if ch.Message.ReasoningContent != "" {
		if err := emit(llm.ReasoningEvent(ch.Message.ReasoningContent)); err != nil {
			return err
		}
	}
	if ch.Message.Content != "" {
		if err := emit(llm.TextEvent(ch.Message.Content)); err != nil {
			return err
		}
	}
	finish := llm.FinishNormal
	if len(ch.Message.ToolCalls) > 0 {
		calls := make([]llm.ToolCall, 0, len(ch.Message.ToolCalls))
		for _, tc := range ch.Message.ToolCalls {
			calls = append(calls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: decodeArguments(tc.Function.Arguments),
			})
		}
		if err := emit(llm.ToolCallsReadyEvent(calls)); err != nil {
			return err
		}
		finish = llm.FinishToolCalls
	}
	usage := llm.Usage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}
	return emit(llm.DoneEvent(finish, usage))
}

func mapFinishReason(name, reason string) (llm.FinishReason, error) {
	switch reason {
	case "stop", "length", "content_filter", "":
		return llm.FinishNormal, nil
	case "tool_calls", "function_call":
		return llm.FinishToolCalls, nil
	default:
		return "", fmt.Errorf("%s: unexpected finish_reason %q", name, reason)
	}
}
