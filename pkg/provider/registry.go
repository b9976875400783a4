package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lumachat/llmcore/pkg/llm"
)

// Info describes one registered provider for discovery surfaces.
type Info struct {
	Name         string           `json:"name"`
	Label        string           `json:"label"`
	Capabilities llm.Capabilities `json:"capabilities"`
}

// Registry maps a provider identifier to its adapter. It is populated during
// startup and read-only afterwards, so lookups need no locking. Swapping in a
// rebuilt registry (config reload) replaces the whole value.
type Registry struct {
	adapters map[string]Adapter
	labels   map[string]string
}

// NewRegistry builds an empty registry. Register all adapters before sharing
// the registry across goroutines.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[string]Adapter{},
		labels:   map[string]string{},
	}
}

// Register adds an adapter under its name. Label is the human-readable
// provider name surfaced by discovery endpoints; empty falls back to name.
func (r *Registry) Register(a Adapter, label string) error {
	if a == nil {
		return fmt.Errorf("provider: adapter is nil")
	}
	name := strings.ToLower(strings.TrimSpace(a.Name()))
	if name == "" {
		return fmt.Errorf("provider: adapter name is empty")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("provider: %q already registered", name)
	}
	if strings.TrimSpace(label) == "" {
		label = name
	}
	r.adapters[name] = a
	r.labels[name] = label
	return nil
}

// Get resolves a provider identifier to its adapter.
func (r *Registry) Get(name string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// Resolve is Get with the taxonomy error the manager surfaces for unknown
// providers.
func (r *Registry) Resolve(name string) (Adapter, error) {
	a, ok := r.Get(name)
	if !ok {
		return nil, llm.Errorf(llm.KindConfiguration, false, "unknown provider %q", name)
	}
	return a, nil
}

// Providers lists registered providers sorted by name.
func (r *Registry) Providers() []Info {
	if r == nil {
		return nil
	}
	out := make([]Info, 0, len(r.adapters))
	for name, a := range r.adapters {
		out = append(out, Info{
			Name:         name,
			Label:        r.labels[name],
			Capabilities: a.Capabilities(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
