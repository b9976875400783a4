package openai

import (
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"

	"github.com/lumachat/llmcore/pkg/llm"
)

func convertMessages(msgs []llm.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	params := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if systemPrompt != "" {
		params = append(params, buildSystemMessage(systemPrompt))
	}
	for idx, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			if systemPrompt != "" {
				continue
			}
			params = append(params, buildSystemMessage(msg.Content))
		case llm.RoleUser:
			params = append(params, buildUserMessage(msg.Content))
		case llm.RoleAssistant:
			union, err := buildAssistantMessage(msg)
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", idx, err)
			}
			params = append(params, union)
		case llm.RoleTool:
			union, err := buildToolMessage(msg)
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", idx, err)
			}
			params = append(params, union)
		default:
			params = append(params, buildUserMessage(msg.Content))
		}
	}
	return params, nil
}

func buildSystemMessage(content string) openaisdk.ChatCompletionMessageParamUnion {
	msg := openaisdk.ChatCompletionSystemMessageParam{}
	msg.Content.OfString = openaisdk.String(content)
	return openaisdk.ChatCompletionMessageParamUnion{OfSystem: &msg}
}

func buildUserMessage(content string) openaisdk.ChatCompletionMessageParamUnion {
	msg := openaisdk.ChatCompletionUserMessageParam{}
	msg.Content.OfString = openaisdk.String(content)
	return openaisdk.ChatCompletionMessageParamUnion{OfUser: &msg}
}

func buildAssistantMessage(msg llm.Message) (openaisdk.ChatCompletionMessageParamUnion, error) {
	asst := openaisdk.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		asst.Content.OfString = openaisdk.String(msg.Content)
	}
	for idx, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Name)
		if name == "" {
			return openaisdk.ChatCompletionMessageParamUnion{}, fmt.Errorf("tool_calls[%d]: missing name", idx)
		}
		args := string(call.Arguments)
		if args == "" {
			args = "{}"
		}
		asst.ToolCalls = append(asst.ToolCalls, openaisdk.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      name,
					Arguments: args,
				},
			},
		})
	}
	return openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
}

func buildToolMessage(msg llm.Message) (openaisdk.ChatCompletionMessageParamUnion, error) {
	if msg.ToolResult == nil || msg.ToolResult.CallID == "" {
		return openaisdk.ChatCompletionMessageParamUnion{}, fmt.Errorf("tool message missing tool_call_id")
	}
	return openaisdk.ToolMessage(msg.ToolResult.Content, msg.ToolResult.CallID), nil
}

func convertTools(defs []llm.ToolDefinition) ([]openaisdk.ChatCompletionToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(defs))
	for idx, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("tools[%d]: missing name", idx)
		}
		fn := openaisdk.FunctionDefinitionParam{Name: name}
		if def.Description != "" {
			fn.Description = openaisdk.String(def.Description)
		}
		if len(def.Parameters) > 0 {
			fn.Parameters = openaisdk.FunctionParameters(def.Parameters)
		}
		out = append(out, openaisdk.ChatCompletionToolUnionParam{
			OfFunction: &openaisdk.ChatCompletionFunctionToolParam{Function: fn},
		})
	}
	return out, nil
}

func convertUsage(u openaisdk.CompletionUsage) llm.Usage {
	return llm.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}
