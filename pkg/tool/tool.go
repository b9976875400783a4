// Package tool holds the executor registry the orchestrator hands tool calls
// to. The core never inspects argument semantics; executors validate their
// own input against the declared JSON Schema.
package tool

import (
	"context"
	"encoding/json"

	"github.com/lumachat/llmcore/pkg/llm"
)

// Executor is one named external capability the model may call.
type Executor interface {
	Name() string
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Func adapts a plain function into an Executor.
type Func struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args json.RawMessage) (any, error)
}

// NewFunc wraps fn as an executor with the given canonical schema.
func NewFunc(name, description string, parameters map[string]any, fn func(ctx context.Context, args json.RawMessage) (any, error)) *Func {
	return &Func{name: name, description: description, parameters: parameters, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: f.name, Description: f.description, Parameters: f.parameters}
}

func (f *Func) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	return f.fn(ctx, args)
}
