package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lumachat/llmcore/pkg/llm"
)

func collect(events *[]llm.StreamEvent) func(llm.StreamEvent) error {
	return func(ev llm.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestInvokeStreamTextAndThoughts(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"mulling\",\"thought\":true}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"The answer\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":5,\"candidatesTokenCount\":3,\"totalTokenCount\":8}}\n\n")
	}))
	defer srv.Close()

	a := New(Options{APIKey: "k", BaseURL: srv.URL})
	req := &llm.ChatRequest{
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Options:  llm.Options{Stream: true, EnableReasoning: true},
	}
	var events []llm.StreamEvent
	if err := a.Invoke(context.Background(), req, collect(&events)); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if gotPath != "/models/gemini-2.0-flash:streamGenerateContent" {
		t.Fatalf("path = %s", gotPath)
	}
	if !strings.Contains(gotQuery, "alt=sse") || !strings.Contains(gotQuery, "key=k") {
		t.Fatalf("query = %s", gotQuery)
	}
	if events[0].Type != llm.EventReasoningDelta || events[0].Text != "mulling" {
		t.Fatalf("events[0] = %+v", events[0])
	}
	if events[1].Type != llm.EventTextDelta || events[1].Text != "The answer" {
		t.Fatalf("events[1] = %+v", events[1])
	}
	last := events[len(events)-1]
	if last.Type != llm.EventDone || last.Finish != llm.FinishNormal || last.Usage.TotalTokens != 8 {
		t.Fatalf("terminal = %+v", last)
	}
}

func TestInvokeStreamFunctionCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"functionCall\":{\"name\":\"lookup\",\"args\":{\"q\":\"go\"}}}]}}]}\n\n")
	}))
	defer srv.Close()

	a := New(Options{APIKey: "k", BaseURL: srv.URL})
	req := &llm.ChatRequest{
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Tools:    []llm.ToolDefinition{{Name: "lookup"}},
		Options:  llm.Options{Stream: true, EnableTools: true},
	}
	var events []llm.StreamEvent
	if err := a.Invoke(context.Background(), req, collect(&events)); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	var ready []llm.ToolCall
	for _, ev := range events {
		if ev.Type == llm.EventToolCallsReady {
			ready = ev.ToolCalls
		}
	}
	if len(ready) != 1 || ready[0].Name != "lookup" {
		t.Fatalf("ready = %+v", ready)
	}
	// The API assigns no call IDs; the adapter synthesizes them.
	if !strings.HasPrefix(ready[0].ID, "call_") {
		t.Fatalf("id = %q", ready[0].ID)
	}
	var args map[string]string
	if err := json.Unmarshal(ready[0].Arguments, &args); err != nil || args["q"] != "go" {
		t.Fatalf("arguments = %s", ready[0].Arguments)
	}
	last := events[len(events)-1]
	if last.Type != llm.EventDone || last.Finish != llm.FinishToolCalls {
		t.Fatalf("terminal = %+v", last)
	}
}

func TestInvokeUnary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"pong"}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":2}}`)
	}))
	defer srv.Close()

	a := New(Options{APIKey: "k", BaseURL: srv.URL})
	req := &llm.ChatRequest{
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
	}
	var events []llm.StreamEvent
	if err := a.Invoke(context.Background(), req, collect(&events)); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if events[0].Type != llm.EventTextDelta || events[0].Text != "pong" {
		t.Fatalf("events[0] = %+v", events[0])
	}
}

func TestInvokeErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"API key not valid"}}`)
	}))
	defer srv.Close()

	a := New(Options{APIKey: "bad", BaseURL: srv.URL})
	req := &llm.ChatRequest{
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}
	err := a.Invoke(context.Background(), req, func(llm.StreamEvent) error { return nil })
	if !llm.IsAuth(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestConvertMessagesRoles(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "time?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "clock", Arguments: json.RawMessage(`{"tz":"UTC"}`)},
		}},
		llm.ToolMessage(llm.ToolResult{CallID: "call_1", Name: "clock", OK: true, Content: `{"t":"12:00"}`}),
	}
	system, contents := convertMessages(msgs, "")
	if system != "be terse" {
		t.Fatalf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("contents = %+v", contents)
	}
	if contents[1].Role != "model" || contents[1].Parts[0].FunctionCall == nil {
		t.Fatalf("model turn = %+v", contents[1])
	}
	if contents[1].Parts[0].FunctionCall.Args["tz"] != "UTC" {
		t.Fatalf("args = %+v", contents[1].Parts[0].FunctionCall.Args)
	}
	// Tool results go back as user-role functionResponse parts.
	if contents[2].Role != "user" || contents[2].Parts[0].FunctionResponse == nil {
		t.Fatalf("tool turn = %+v", contents[2])
	}
	if contents[2].Parts[0].FunctionResponse.Name != "clock" {
		t.Fatalf("response name = %+v", contents[2].Parts[0].FunctionResponse)
	}
}

func TestConvertMessagesSystemOverride(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "old"},
		{Role: llm.RoleUser, Content: "hi"},
	}
	system, contents := convertMessages(msgs, "new")
	if system != "new" {
		t.Fatalf("system = %q", system)
	}
	if len(contents) != 1 || contents[0].Role != "user" {
		t.Fatalf("contents = %+v", contents)
	}
}

func TestBuildRequestThinkingConfig(t *testing.T) {
	req := &llm.ChatRequest{
		Model:    "gemini-2.0-flash",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Options:  llm.Options{EnableReasoning: true},
	}
	out := buildRequest(req)
	if out.GenerationConfig == nil || out.GenerationConfig.ThinkingConfig == nil {
		t.Fatalf("generation config = %+v", out.GenerationConfig)
	}
	if !out.GenerationConfig.ThinkingConfig.IncludeThoughts {
		t.Fatal("include thoughts not set")
	}
}
