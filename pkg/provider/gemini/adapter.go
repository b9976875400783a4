// Package gemini implements a provider adapter for the Gemini
// generateContent API over plain HTTP.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/provider"
	"github.com/lumachat/llmcore/pkg/telemetry"
)

const thinkingBudget = 2048

// Options configure the adapter.
type Options struct {
	// Name is the registry key. Defaults to "gemini".
	Name   string
	APIKey string
	// BaseURL defaults to the public Generative Language endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Adapter speaks the Gemini generateContent wire protocol.
type Adapter struct {
	opts   Options
	client *http.Client
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds a Gemini adapter.
func New(opts Options) *Adapter {
	if opts.Name == "" {
		opts.Name = "gemini"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{opts: opts, client: client}
}

func (a *Adapter) Name() string { return a.opts.Name }

func (a *Adapter) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true, Tools: true, Reasoning: true}
}

// Invoke runs one model call and emits normalized events. Gemini streams
// complete functionCall parts per chunk, so tool calls are announced via
// ToolCallsReady directly instead of fragment deltas. The API assigns no
// call IDs; fresh ones are generated so results can be correlated.
func (a *Adapter) Invoke(ctx context.Context, req *llm.ChatRequest, emit provider.EmitFunc) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.gemini.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", a.opts.Name),
			attribute.String("llm.model", req.Model),
			attribute.Bool("llm.stream", req.Options.Stream),
		)...),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	payload := buildRequest(req)
	raw, err := json.Marshal(payload)
	if err != nil {
		return &llm.Error{Kind: llm.KindProtocol, Message: "gemini: encode request", Cause: err}
	}

	method := "generateContent"
	if req.Options.Stream {
		method = "streamGenerateContent"
	}
	endpoint := a.opts.BaseURL + "/models/" + url.PathEscape(req.Model) + ":" + method + "?key=" + url.QueryEscape(a.opts.APIKey)
	if req.Options.Stream {
		endpoint += "&alt=sse"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return &llm.Error{Kind: llm.KindConfiguration, Message: "gemini: build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return provider.MapContextError(ctx, err)
		}
		return &llm.Error{Kind: llm.KindNetwork, Message: "gemini: request failed", Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provider.ClassifyResponse("gemini", resp)
	}
	if req.Options.Stream {
		return a.consumeStream(ctx, resp, emit)
	}
	return a.consumeUnary(resp, emit)
}

func buildRequest(req *llm.ChatRequest) *generateRequest {
	system, contents := convertMessages(req.Messages, req.Options.SystemPrompt)
	out := &generateRequest{Contents: contents}
	if strings.TrimSpace(system) != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	if req.Options.EnableTools && len(req.Tools) > 0 {
		decls := make([]functionDecl, 0, len(req.Tools))
		for _, def := range req.Tools {
			decls = append(decls, functionDecl{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			})
		}
		out.Tools = []toolDecl{{FunctionDeclarations: decls}}
	}
	cfg := &generationConfig{
		Temperature:     req.Options.Temperature,
		TopP:            req.Options.TopP,
		MaxOutputTokens: req.Options.MaxTokens,
	}
	if req.Options.EnableReasoning {
		cfg.ThinkingConfig = &thinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  thinkingBudget,
		}
	}
	if *cfg != (generationConfig{}) {
		out.GenerationConfig = cfg
	}
	return out
}

func convertMessages(msgs []llm.Message, systemPrompt string) (string, []content) {
	systemLines := make([]string, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		systemLines = append(systemLines, systemPrompt)
	}
	out := make([]content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			if systemPrompt == "" && strings.TrimSpace(m.Content) != "" {
				systemLines = append(systemLines, m.Content)
			}
		case llm.RoleAssistant:
			parts := make([]part, 0, len(m.ToolCalls)+1)
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, part{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, part{
					FunctionCall: &functionCall{
						Name: call.Name,
						Args: decodeArgs(call.Arguments),
					},
				})
			}
			if len(parts) > 0 {
				out = append(out, content{Role: "model", Parts: parts})
			}
		case llm.RoleTool:
			if m.ToolResult == nil {
				continue
			}
			out = append(out, content{
				Role: "user",
				Parts: []part{{
					FunctionResponse: &functionResponse{
						Name:     m.ToolResult.Name,
						Response: map[string]any{"result": m.ToolResult.Content},
					},
				}},
			})
		default:
			out = append(out, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	return strings.Join(systemLines, "\n\n"), out
}

func decodeArgs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func (a *Adapter) consumeUnary(resp *http.Response, emit provider.EmitFunc) error {
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &llm.Error{Kind: llm.KindProtocol, Message: "gemini: decode response", Cause: err}
	}
	if len(out.Candidates) == 0 {
		return llm.Errorf(llm.KindProtocol, false, "gemini: response has no candidates")
	}
	var calls []llm.ToolCall
	if err := emitParts(out.Candidates[0].Content.Parts, emit, &calls); err != nil {
		return err
	}
	finish := llm.FinishNormal
	if len(calls) > 0 {
		if err := emit(llm.ToolCallsReadyEvent(calls)); err != nil {
			return err
		}
		finish = llm.FinishToolCalls
	}
	return emit(llm.DoneEvent(finish, convertUsage(out)))
}

func (a *Adapter) consumeStream(ctx context.Context, resp *http.Response, emit provider.EmitFunc) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		calls  []llm.ToolCall
		usage  llm.Usage
		sawAny bool
	)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return provider.MapContextError(ctx, err)
		}
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &chunk); err != nil {
			return &llm.Error{Kind: llm.KindProtocol, Message: "gemini: malformed stream frame", Cause: err}
		}
		sawAny = true
		if u := convertUsage(chunk); u != (llm.Usage{}) {
			usage = u
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		if err := emitParts(chunk.Candidates[0].Content.Parts, emit, &calls); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return provider.MapContextError(ctx, err)
		}
		return &llm.Error{Kind: llm.KindNetwork, Message: "gemini: stream read", Retryable: true, Cause: err}
	}
	if !sawAny {
		return llm.Errorf(llm.KindProtocol, false, "gemini: stream ended without any frames")
	}

	finish := llm.FinishNormal
	if len(calls) > 0 {
		if err := emit(llm.ToolCallsReadyEvent(calls)); err != nil {
			return err
		}
		finish = llm.FinishToolCalls
	}
	return emit(llm.DoneEvent(finish, usage))
}

func emitParts(parts []part, emit provider.EmitFunc, calls *[]llm.ToolCall) error {
	for _, p := range parts {
		if p.Text != "" {
			var err error
			if p.Thought {
				err = emit(llm.ReasoningEvent(p.Text))
			} else {
				err = emit(llm.TextEvent(p.Text))
			}
			if err != nil {
				return err
			}
		}
		if p.FunctionCall != nil {
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil || len(p.FunctionCall.Args) == 0 {
				args = []byte(`{}`)
			}
			*calls = append(*calls, llm.ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      p.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	return nil
}

func convertUsage(out generateResponse) llm.Usage {
	m := out.UsageMetadata
	return llm.Usage{
		PromptTokens:     m.PromptTokenCount,
		CompletionTokens: m.CandidatesTokenCount,
		TotalTokens:      m.TotalTokenCount,
	}
}
