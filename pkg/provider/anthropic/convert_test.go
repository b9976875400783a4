package anthropic

import (
	"encoding/json"
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/lumachat/llmcore/pkg/llm"
)

func TestConvertMessagesSystemExtraction(t *testing.T) {
	system, params := convertMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	}, "")

	if len(system) != 1 || system[0].Text != "be terse" {
		t.Fatalf("system blocks = %+v", system)
	}
	if len(params) != 2 {
		t.Fatalf("messages = %d", len(params))
	}
	if params[0].Role != anthropicsdk.MessageParamRoleUser {
		t.Fatalf("first role = %v", params[0].Role)
	}
	if params[1].Role != anthropicsdk.MessageParamRoleAssistant {
		t.Fatalf("second role = %v", params[1].Role)
	}
}

func TestConvertMessagesSystemOverride(t *testing.T) {
	system, _ := convertMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "old prompt"},
		{Role: llm.RoleUser, Content: "hi"},
	}, "new prompt")

	if len(system) != 1 || system[0].Text != "new prompt" {
		t.Fatalf("system blocks = %+v", system)
	}
}

func TestConvertMessagesToolHistory(t *testing.T) {
	_, params := convertMessages([]llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "clock", Arguments: json.RawMessage(`{"tz":"UTC"}`)},
		}},
		llm.ToolMessage(llm.ToolResult{CallID: "call_1", Name: "clock", OK: true, Content: `{"time":"now"}`}),
	}, "")

	if len(params) != 2 {
		t.Fatalf("messages = %d", len(params))
	}

	assistant := params[0]
	if assistant.Role != anthropicsdk.MessageParamRoleAssistant {
		t.Fatalf("role = %v", assistant.Role)
	}
	toolUse := assistant.Content[0].OfToolUse
	if toolUse == nil || toolUse.ID != "call_1" || toolUse.Name != "clock" {
		t.Fatalf("tool use = %+v", assistant.Content[0])
	}

	// Tool results travel as user messages.
	result := params[1]
	if result.Role != anthropicsdk.MessageParamRoleUser {
		t.Fatalf("result role = %v", result.Role)
	}
	block := result.Content[0].OfToolResult
	if block == nil || block.ToolUseID != "call_1" {
		t.Fatalf("result block = %+v", result.Content[0])
	}
}

func TestConvertMessagesFailedToolResultFlagsError(t *testing.T) {
	_, params := convertMessages([]llm.Message{
		llm.ToolMessage(llm.ToolResult{CallID: "c1", OK: false, Content: "boom"}),
	}, "")
	block := params[0].Content[0].OfToolResult
	if block == nil || !block.IsError.Valid() || !block.IsError.Value {
		t.Fatalf("block = %+v", params[0].Content[0])
	}
}

func TestConvertMessagesEmptyContentPlaceholder(t *testing.T) {
	_, params := convertMessages([]llm.Message{{Role: llm.RoleUser, Content: ""}}, "")
	if len(params) != 1 {
		t.Fatalf("messages = %d", len(params))
	}
	if text := params[0].Content[0].OfText; text == nil || text.Text != "." {
		t.Fatalf("content = %+v", params[0].Content[0])
	}
}

func TestConvertTools(t *testing.T) {
	tools, err := convertTools([]llm.ToolDefinition{
		{Name: "clock", Description: "reads the clock", Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tz": map[string]any{"type": "string"},
			},
			"required": []any{"tz"},
		}},
		{Name: "   "},
		{Name: "bare"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 2 {
		t.Fatalf("tools = %d", len(tools))
	}
	clock := tools[0].OfTool
	if clock.Name != "clock" || clock.InputSchema.Type != "object" {
		t.Fatalf("clock = %+v", clock)
	}
	if clock.InputSchema.Properties == nil {
		t.Fatal("schema properties lost in conversion")
	}
	if bare := tools[1].OfTool; bare.InputSchema.Type != "object" {
		t.Fatalf("bare schema = %+v", bare.InputSchema)
	}
}

func TestDecodeArguments(t *testing.T) {
	if got := decodeArguments(nil); len(got) != 0 {
		t.Fatalf("nil args = %v", got)
	}
	if got := decodeArguments(json.RawMessage(`not json`)); len(got) != 0 {
		t.Fatalf("malformed args = %v", got)
	}
	got := decodeArguments(json.RawMessage(`{"a":1}`))
	if got["a"] != float64(1) {
		t.Fatalf("args = %v", got)
	}
}

func TestMapStopReason(t *testing.T) {
	if got := mapStopReason(anthropicsdk.StopReasonToolUse); got != llm.FinishToolCalls {
		t.Fatalf("tool_use = %v", got)
	}
	if got := mapStopReason(anthropicsdk.StopReasonEndTurn); got != llm.FinishNormal {
		t.Fatalf("end_turn = %v", got)
	}
}

func TestConvertUsage(t *testing.T) {
	u := convertUsage(anthropicsdk.Usage{InputTokens: 10, OutputTokens: 4})
	if u.PromptTokens != 10 || u.CompletionTokens != 4 || u.TotalTokens != 14 {
		t.Fatalf("usage = %+v", u)
	}
}
