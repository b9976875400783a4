package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lumachat/llmcore/pkg/llm"
)

func sumTool() *Func {
	return NewFunc("sum", "Adds two integers.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "integer"},
				"b": map[string]any{"type": "integer"},
			},
			"required": []any{"a", "b"},
		},
		func(_ context.Context, args json.RawMessage) (any, error) {
			var in struct{ A, B int }
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return map[string]int{"sum": in.A + in.B}, nil
		})
}

func TestRegistryRegister(t *testing.T) {
	tests := []struct {
		name        string
		exec        Executor
		preRegister []Executor
		wantErr     string
	}{
		{name: "nil executor", wantErr: "executor is nil"},
		{name: "empty name", exec: NewFunc("", "", nil, nil), wantErr: "name is empty"},
		{
			name:        "duplicate rejected",
			exec:        sumTool(),
			preRegister: []Executor{sumTool()},
			wantErr:     "already registered",
		},
		{
			name:    "malformed schema fails at registration",
			exec:    NewFunc("bad", "", map[string]any{"type": 42}, nil),
			wantErr: "schema",
		},
		{name: "valid", exec: sumTool()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, pre := range tt.preRegister {
				if err := r.Register(pre); err != nil {
					t.Fatalf("pre-register: %v", err)
				}
			}
			err := r.Register(tt.exec)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("register: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(NewFunc(name, "", nil, func(context.Context, json.RawMessage) (any, error) {
			return nil, nil
		})); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	defs := r.Definitions()
	if len(defs) != 3 || defs[0].Name != "alpha" || defs[1].Name != "mid" || defs[2].Name != "zeta" {
		t.Fatalf("defs = %+v", defs)
	}
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(sumTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("success", func(t *testing.T) {
		res, err := r.Execute(context.Background(), llm.ToolCall{
			ID: "c1", Name: "sum", Arguments: json.RawMessage(`{"a":2,"b":3}`),
		})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !res.OK || res.CallID != "c1" || res.Content != `{"sum":5}` {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		res, err := r.Execute(context.Background(), llm.ToolCall{ID: "c2", Name: "nope"})
		if !llm.IsKind(err, llm.KindToolExecution) {
			t.Fatalf("err = %v", err)
		}
		if res.OK || !strings.Contains(res.Content, "not registered") {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		res, err := r.Execute(context.Background(), llm.ToolCall{
			ID: "c3", Name: "sum", Arguments: json.RawMessage(`{"a":"two"}`),
		})
		if !llm.IsKind(err, llm.KindToolExecution) {
			t.Fatalf("err = %v", err)
		}
		if res.OK {
			t.Fatalf("result = %+v", res)
		}
		// The content is a JSON error payload the model can read.
		var payload map[string]string
		if jerr := json.Unmarshal([]byte(res.Content), &payload); jerr != nil || payload["error"] == "" {
			t.Fatalf("content = %q", res.Content)
		}
	})

	t.Run("executor failure", func(t *testing.T) {
		if err := r.Register(NewFunc("fail", "", nil, func(context.Context, json.RawMessage) (any, error) {
			return nil, context.DeadlineExceeded
		})); err != nil {
			t.Fatal(err)
		}
		res, err := r.Execute(context.Background(), llm.ToolCall{ID: "c4", Name: "fail"})
		if !llm.IsKind(err, llm.KindToolExecution) {
			t.Fatalf("err = %v", err)
		}
		if res.OK {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("empty arguments validate as empty object", func(t *testing.T) {
		if err := r.Register(NewFunc("noargs", "", map[string]any{"type": "object"}, func(context.Context, json.RawMessage) (any, error) {
			return "done", nil
		})); err != nil {
			t.Fatal(err)
		}
		res, err := r.Execute(context.Background(), llm.ToolCall{ID: "c5", Name: "noargs"})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !res.OK || res.Content != `"done"` {
			t.Fatalf("result = %+v", res)
		}
	})
}
