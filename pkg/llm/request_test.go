package llm

import (
	"strings"
	"testing"
)

func validRequest() *ChatRequest {
	return &ChatRequest{
		Provider: "openai",
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChatRequest)
		wantErr string
	}{
		{"valid", func(*ChatRequest) {}, ""},
		{"missing provider", func(r *ChatRequest) { r.Provider = "  " }, "provider is required"},
		{"missing model", func(r *ChatRequest) { r.Model = "" }, "model is required"},
		{"empty messages", func(r *ChatRequest) { r.Messages = nil }, "messages are empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
			if !IsKind(err, KindConfiguration) {
				t.Fatalf("kind = %v", err)
			}
		})
	}

	var nilReq *ChatRequest
	if err := nilReq.Validate(); !IsKind(err, KindConfiguration) {
		t.Fatalf("nil request err = %v", err)
	}
}

func TestCloneIsolatesMessages(t *testing.T) {
	req := validRequest()
	req.Tools = []ToolDefinition{{Name: "clock"}}

	clone := req.Clone()
	clone.Messages = append(clone.Messages, Message{Role: RoleAssistant, Content: "reply"})
	clone.Messages[0].Content = "mutated"
	clone.Tools[0].Name = "other"

	if len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
		t.Fatalf("original messages changed: %+v", req.Messages)
	}
	if req.Tools[0].Name != "clock" {
		t.Fatalf("original tools changed: %+v", req.Tools)
	}
}

func TestCapabilitiesCheck(t *testing.T) {
	caps := Capabilities{Streaming: true}

	if err := caps.Check(Options{Stream: true}); err != nil {
		t.Fatalf("supported option rejected: %v", err)
	}
	err := caps.Check(Options{EnableTools: true})
	if !IsKind(err, KindConfiguration) || !strings.Contains(err.Error(), "tool calls") {
		t.Fatalf("err = %v", err)
	}
	err = caps.Check(Options{EnableReasoning: true})
	if !IsKind(err, KindConfiguration) || !strings.Contains(err.Error(), "reasoning") {
		t.Fatalf("err = %v", err)
	}
}

func TestToolMessage(t *testing.T) {
	msg := ToolMessage(ToolResult{CallID: "c1", OK: true, Content: `{"sum":3}`})
	if msg.Role != RoleTool || msg.Content != `{"sum":3}` || msg.ToolResult.CallID != "c1" {
		t.Fatalf("msg = %+v", msg)
	}

	// Failed results with no payload still carry a readable body.
	failed := ToolMessage(ToolResult{CallID: "c2", OK: false})
	if failed.Content == "" {
		t.Fatal("failed tool message has empty content")
	}
}
