package config

import (
	"fmt"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/provider"
	"github.com/lumachat/llmcore/pkg/provider/anthropic"
	"github.com/lumachat/llmcore/pkg/provider/compat"
	"github.com/lumachat/llmcore/pkg/provider/gemini"
	"github.com/lumachat/llmcore/pkg/provider/openai"
)

// BuildRegistry constructs a fresh adapter registry from cfg. The registry is
// immutable once built; config reload builds a new one and swaps it in.
func BuildRegistry(cfg *Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for _, p := range cfg.Providers {
		adapter, err := buildAdapter(p)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(adapter, p.Label); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildAdapter(p ProviderConfig) (provider.Adapter, error) {
	key := p.ResolveAPIKey()
	switch p.Kind {
	case KindOpenAI:
		return openai.New(openai.Options{Name: p.Name, APIKey: key, BaseURL: p.BaseURL}), nil
	case KindAnthropic:
		return anthropic.New(anthropic.Options{Name: p.Name, APIKey: key, BaseURL: p.BaseURL}), nil
	case KindGemini:
		return gemini.New(gemini.Options{Name: p.Name, APIKey: key, BaseURL: p.BaseURL}), nil
	case KindOpenAICompat:
		return compat.New(compat.Options{
			Name:           p.Name,
			BaseURL:        p.BaseURL,
			APIKey:         key,
			Headers:        p.Headers,
			EnableThinking: p.Thinking,
			Capabilities: llm.Capabilities{
				Streaming: true,
				Tools:     true,
				Reasoning: p.Reasoning || p.Thinking,
			},
		}), nil
	default:
		return nil, fmt.Errorf("config: provider %q has unknown kind %q", p.Name, p.Kind)
	}
}
