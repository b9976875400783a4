package compat

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/provider"
)

// consumeStream reads the SSE body and emits one normalized event per
// meaningful delta. Tool-call fragments are forwarded as-is; assembling them
// into complete calls is the aggregator's job downstream.
func (a *Adapter) consumeStream(ctx context.Context, resp *http.Response, emit provider.EmitFunc) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		finish llm.FinishReason = llm.FinishNormal
		usage  llm.Usage
		sawAny bool
	)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return provider.MapContextError(ctx, err)
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return &llm.Error{Kind: llm.KindProtocol, Message: a.opts.Name + ": malformed stream frame", Cause: err}
		}
		sawAny = true

		if chunk.Usage != nil {
			usage = llm.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		ch := chunk.Choices[0]

		if ch.Delta.ReasoningContent != "" {
			if err := emit(llm.ReasoningEvent(ch.Delta.ReasoningContent)); err != nil {
				return err
			}
		}
		if ch.Delta.Content != "" {
			if err := emit(llm.TextEvent(ch.Delta.Content)); err != nil {
				return err
			}
		}
		for _, tc := range ch.Delta.ToolCalls {
			err := emit(llm.ToolDeltaEvent(llm.ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}))
			if err != nil {
				return err
			}
		}
		if ch.FinishReason != "" {
			mapped, err := mapFinishReason(a.opts.Name, ch.FinishReason)
			if err != nil {
				return &llm.Error{Kind: llm.KindProtocol, Message: err.Error(), Cause: err}
			}
			finish = mapped
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return provider.MapContextError(ctx, err)
		}
		return &llm.Error{Kind: llm.KindNetwork, Message: a.opts.Name + ": stream read", Retryable: true, Cause: err}
	}
	if !sawAny {
		return llm.Errorf(llm.KindProtocol, false, "%s: stream ended without any frames", a.opts.Name)
	}

	return emit(llm.DoneEvent(finish, usage))
}
