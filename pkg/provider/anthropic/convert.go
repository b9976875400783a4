package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/lumachat/llmcore/pkg/llm"
)

// convertMessages splits system content into system blocks (the Anthropic API
// takes the system prompt outside the message list) and converts the rest.
// An explicit systemPrompt overrides any system messages in the history.
func convertMessages(msgs []llm.Message, systemPrompt string) ([]anthropicsdk.TextBlockParam, []anthropicsdk.MessageParam) {
	var systemBlocks []anthropicsdk.TextBlockParam
	if strings.TrimSpace(systemPrompt) != "" {
		systemBlocks = append(systemBlocks, anthropicsdk.TextBlockParam{Text: systemPrompt})
	}

	params := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			if systemPrompt == "" && strings.TrimSpace(msg.Content) != "" {
				systemBlocks = append(systemBlocks, anthropicsdk.TextBlockParam{Text: msg.Content})
			}
			continue
		}
		blocks := buildContentBlocks(msg)
		if len(blocks) == 0 {
			// The API rejects empty content.
			blocks = []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(".")}
		}
		params = append(params, anthropicsdk.MessageParam{
			Role:    roleFor(msg.Role),
			Content: blocks,
		})
	}
	return systemBlocks, params
}

func roleFor(role llm.Role) anthropicsdk.MessageParamRole {
	switch role {
	case llm.RoleAssistant:
		return anthropicsdk.MessageParamRoleAssistant
	default:
		// Tool results travel as user messages on this API.
		return anthropicsdk.MessageParamRoleUser
	}
}

func buildContentBlocks(msg llm.Message) []anthropicsdk.ContentBlockParamUnion {
	switch msg.Role {
	case llm.RoleTool:
		if msg.ToolResult != nil && msg.ToolResult.CallID != "" {
			return buildToolResultBlocks(msg.ToolResult)
		}
	case llm.RoleAssistant:
		return buildAssistantBlocks(msg)
	}
	if msg.Content == "" {
		return nil
	}
	return []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(msg.Content)}
}

func buildAssistantBlocks(msg llm.Message) []anthropicsdk.ContentBlockParamUnion {
	var blocks []anthropicsdk.ContentBlockParamUnion
	if msg.Content != "" {
		blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		if call.ID == "" || call.Name == "" {
			continue
		}
		blocks = append(blocks, anthropicsdk.NewToolUseBlock(call.ID, decodeArguments(call.Arguments), call.Name))
	}
	return blocks
}

func buildToolResultBlocks(res *llm.ToolResult) []anthropicsdk.ContentBlockParamUnion {
	block := anthropicsdk.ToolResultBlockParam{
		ToolUseID: res.CallID,
		Content: []anthropicsdk.ToolResultBlockParamContentUnion{
			{OfText: &anthropicsdk.TextBlockParam{Text: res.Content}},
		},
	}
	if !res.OK {
		block.IsError = anthropicsdk.Bool(true)
	}
	return []anthropicsdk.ContentBlockParamUnion{{OfToolResult: &block}}
}

func decodeArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func convertTools(defs []llm.ToolDefinition) ([]anthropicsdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]anthropicsdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			continue
		}
		schema, err := convertSchema(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("convert schema for %s: %w", name, err)
		}
		tool := anthropicsdk.ToolParam{
			Name:        name,
			InputSchema: schema,
		}
		if def.Description != "" {
			tool.Description = anthropicsdk.String(def.Description)
		}
		out = append(out, anthropicsdk.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

func convertSchema(params map[string]any) (anthropicsdk.ToolInputSchemaParam, error) {
	if len(params) == 0 {
		return anthropicsdk.ToolInputSchemaParam{Type: "object"}, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return anthropicsdk.ToolInputSchemaParam{}, fmt.Errorf("marshal schema: %w", err)
	}
	var schema anthropicsdk.ToolInputSchemaParam
	if err := json.Unmarshal(data, &schema); err != nil {
		return anthropicsdk.ToolInputSchemaParam{}, fmt.Errorf("unmarshal schema: %w", err)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}

func convertUsage(u anthropicsdk.Usage) llm.Usage {
	return llm.Usage{
		PromptTokens:     int(u.InputTokens),
		CompletionTokens: int(u.OutputTokens),
		TotalTokens:      int(u.InputTokens + u.OutputTokens),
	}
}
