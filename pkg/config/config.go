// Package config loads the declarative gateway configuration: which
// providers to register, runtime limits, MCP tool servers, and telemetry.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderKind selects the adapter implementation for a provider entry.
type ProviderKind string

const (
	KindOpenAI       ProviderKind = "openai"
	KindAnthropic    ProviderKind = "anthropic"
	KindGemini       ProviderKind = "gemini"
	KindOpenAICompat ProviderKind = "openai_compat"
)

// ProviderConfig declares one provider endpoint.
type ProviderConfig struct {
	Name string       `json:"name" yaml:"name"`
	Kind ProviderKind `json:"kind" yaml:"kind"`
	// Label is the human-readable name surfaced on the models endpoint.
	Label   string `json:"label" yaml:"label"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the key. Takes
	// precedence over APIKey so secrets stay out of config files.
	APIKeyEnv string            `json:"api_key_env" yaml:"api_key_env"`
	APIKey    string            `json:"api_key" yaml:"api_key"`
	Headers   map[string]string `json:"headers" yaml:"headers"`
	// Thinking enables the reasoning channel on compat endpoints that
	// gate it behind a request flag.
	Thinking bool `json:"thinking" yaml:"thinking"`
	// Reasoning marks the provider as reasoning-capable (compat only;
	// SDK adapters report their own capabilities).
	Reasoning bool `json:"reasoning" yaml:"reasoning"`
}

// Duration decodes Go duration strings ("250ms", "10s") from yaml or json.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("invalid duration %s", raw)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RuntimeConfig bounds turn execution.
type RuntimeConfig struct {
	MaxRounds       int      `json:"max_rounds" yaml:"max_rounds"`
	MaxAttempts     int      `json:"max_attempts" yaml:"max_attempts"`
	InitialInterval Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     Duration `json:"max_interval" yaml:"max_interval"`
	// ToolFailure is "feed_back" or "fail_fast".
	ToolFailure string `json:"tool_failure" yaml:"tool_failure"`
}

// MCPServerConfig declares one MCP tool server.
type MCPServerConfig struct {
	Name string `json:"name" yaml:"name"`
	// Transport is "stdio", "sse", or "http".
	Transport string            `json:"transport" yaml:"transport"`
	Command   string            `json:"command" yaml:"command"`
	Args      []string          `json:"args" yaml:"args"`
	URL       string            `json:"url" yaml:"url"`
	Env       map[string]string `json:"env" yaml:"env"`
}

// ServerConfig controls the HTTP front end.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Environment string `json:"environment" yaml:"environment"`
}

// Config is the root document.
type Config struct {
	Providers []ProviderConfig  `json:"providers" yaml:"providers"`
	Runtime   RuntimeConfig     `json:"runtime" yaml:"runtime"`
	MCP       []MCPServerConfig `json:"mcp" yaml:"mcp"`
	Server    ServerConfig      `json:"server" yaml:"server"`
	Telemetry TelemetryConfig   `json:"telemetry" yaml:"telemetry"`

	SourcePath string `json:"-" yaml:"-"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.SourcePath = path
	return cfg, nil
}

// Parse decodes yaml or json into a validated Config.
func Parse(raw []byte) (*Config, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.New("config payload is empty")
	}
	cfg := &Config{}
	if err := decodeMixedYAMLJSON(raw, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeMixedYAMLJSON(data []byte, out any) error {
	if err := yaml.Unmarshal(data, out); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}
	return errors.New("config decode failed: unsupported format")
}

func (c *Config) normalize() {
	for i := range c.Providers {
		p := &c.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Kind = ProviderKind(strings.TrimSpace(strings.ToLower(string(p.Kind))))
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
		if p.Label == "" {
			p.Label = p.Name
		}
	}
	for i := range c.MCP {
		m := &c.MCP[i]
		m.Name = strings.TrimSpace(m.Name)
		m.Transport = strings.TrimSpace(strings.ToLower(m.Transport))
		if m.Transport == "" {
			m.Transport = "stdio"
		}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Validate checks structural constraints.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("config: at least one provider is required")
	}
	seen := map[string]struct{}{}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("config: providers[%d] missing name", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("config: duplicate provider %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Kind {
		case KindOpenAI, KindAnthropic, KindGemini:
		case KindOpenAICompat:
			if p.BaseURL == "" {
				return fmt.Errorf("config: provider %q requires base_url", p.Name)
			}
		default:
			return fmt.Errorf("config: provider %q has unknown kind %q", p.Name, p.Kind)
		}
	}
	for i, m := range c.MCP {
		if m.Name == "" {
			return fmt.Errorf("config: mcp[%d] missing name", i)
		}
		switch m.Transport {
		case "stdio":
			if m.Command == "" {
				return fmt.Errorf("config: mcp server %q requires command", m.Name)
			}
		case "sse", "http":
			if m.URL == "" {
				return fmt.Errorf("config: mcp server %q requires url", m.Name)
			}
		default:
			return fmt.Errorf("config: mcp server %q has unknown transport %q", m.Name, m.Transport)
		}
	}
	return nil
}

// ResolveAPIKey returns the provider's secret, preferring the environment
// variable reference.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v
		}
	}
	return p.APIKey
}
