package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lumachat/llmcore/pkg/llm"
)

// Registry keeps the mapping between tool names and executors. Argument
// payloads are validated against the executor's declared schema before the
// executor runs.
type Registry struct {
	mu      sync.RWMutex
	execs   map[string]Executor
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		execs:   map[string]Executor{},
		schemas: map[string]*jsonschema.Schema{},
	}
}

// Register inserts an executor when its name is not in use. The declared
// parameter schema is compiled eagerly so malformed schemas fail at startup,
// not mid-turn.
func (r *Registry) Register(e Executor) error {
	if e == nil {
		return fmt.Errorf("tool: executor is nil")
	}
	name := strings.TrimSpace(e.Name())
	if name == "" {
		return fmt.Errorf("tool: executor name is empty")
	}

	schema, err := compileSchema(e.Definition().Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.execs[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.execs[name] = e
	if schema != nil {
		r.schemas[name] = schema
	}
	return nil
}

// Definitions returns the canonical schemas of all registered tools, sorted
// by name so provider payloads stay deterministic.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDefinition, 0, len(r.execs))
	for _, e := range r.execs {
		out = append(out, e.Definition())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named executor for one tool call. Failures come back as a
// *llm.Error with kind ToolExecution; the result mirrors the outcome either
// way so the orchestrator can feed it back to the model.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (llm.ToolResult, error) {
	res := llm.ToolResult{CallID: call.ID, Name: call.Name}

	r.mu.RLock()
	exec := r.execs[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()

	if exec == nil {
		err := llm.Errorf(llm.KindToolExecution, false, "tool %q not registered", call.Name)
		res.Content = errorContent(err)
		return res, err
	}
	if schema != nil {
		if err := validate(schema, call.Arguments); err != nil {
			werr := llm.WrapError(llm.KindToolExecution, false, fmt.Errorf("tool %s arguments: %w", call.Name, err))
			res.Content = errorContent(werr)
			return res, werr
		}
	}

	value, err := exec.Execute(ctx, call.Arguments)
	if err != nil {
		werr := llm.WrapError(llm.KindToolExecution, false, fmt.Errorf("tool %s: %w", call.Name, err))
		res.Content = errorContent(werr)
		return res, werr
	}
	res.OK = true
	res.Content = encodeResult(value)
	return res, nil
}

func compileSchema(parameters map[string]any) (*jsonschema.Schema, error) {
	if len(parameters) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema resource: %w", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

func validate(schema *jsonschema.Schema, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return schema.Validate(doc)
}

func encodeResult(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(raw)
}

func errorContent(err error) string {
	return fmt.Sprintf(`{"error":%q}`, err.Error())
}
