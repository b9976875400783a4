package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: ":9090"
runtime:
  max_rounds: 4
  max_attempts: 2
  initial_interval: 250ms
  tool_failure: fail_fast
providers:
  - name: openai
    kind: openai
    api_key_env: OPENAI_API_KEY
  - name: deepseek
    kind: openai_compat
    label: DeepSeek
    base_url: https://api.deepseek.com/v1/
    thinking: true
mcp:
  - name: files
    command: mcp-files
  - name: search
    transport: sse
    url: http://127.0.0.1:9001/sse
telemetry:
  endpoint: http://127.0.0.1:4318
  service_name: gateway
`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Runtime.MaxRounds)
	assert.Equal(t, 250*time.Millisecond, cfg.Runtime.InitialInterval.Std())
	assert.Equal(t, "fail_fast", cfg.Runtime.ToolFailure)

	require.Len(t, cfg.Providers, 2)
	ds := cfg.Providers[1]
	assert.Equal(t, KindOpenAICompat, ds.Kind)
	assert.Equal(t, "DeepSeek", ds.Label)
	// Trailing slash is normalized away.
	assert.Equal(t, "https://api.deepseek.com/v1", ds.BaseURL)
	assert.True(t, ds.Thinking)
	// Label defaults to the provider name.
	assert.Equal(t, "openai", cfg.Providers[0].Label)

	require.Len(t, cfg.MCP, 2)
	assert.Equal(t, "stdio", cfg.MCP[0].Transport)
	assert.Equal(t, "sse", cfg.MCP[1].Transport)

	assert.Equal(t, "gateway", cfg.Telemetry.ServiceName)
}

func TestParseJSON(t *testing.T) {
	raw := `{"providers":[{"name":"claude","kind":"anthropic"}]}`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, KindAnthropic, cfg.Providers[0].Kind)
	// Defaults apply on a minimal document.
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestParseValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty payload", "   ", "empty"},
		{"no providers", `{"server":{"addr":":1"}}`, "at least one provider"},
		{"missing name", `{"providers":[{"kind":"openai"}]}`, "missing name"},
		{"unknown kind", `{"providers":[{"name":"x","kind":"cohere"}]}`, "unknown kind"},
		{
			"duplicate names",
			`{"providers":[{"name":"x","kind":"openai"},{"name":"x","kind":"gemini"}]}`,
			"duplicate provider",
		},
		{
			"compat needs base_url",
			`{"providers":[{"name":"local","kind":"openai_compat"}]}`,
			"requires base_url",
		},
		{
			"stdio mcp needs command",
			`{"providers":[{"name":"x","kind":"openai"}],"mcp":[{"name":"bad"}]}`,
			"requires command",
		},
		{
			"sse mcp needs url",
			`{"providers":[{"name":"x","kind":"openai"}],"mcp":[{"name":"bad","transport":"sse"}]}`,
			"requires url",
		},
		{
			"bad duration",
			`{"providers":[{"name":"x","kind":"openai"}],"runtime":{"initial_interval":"soon"}}`,
			"decode failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSetsSourcePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.SourcePath)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("LLMCORE_TEST_KEY", "from-env")
	p := ProviderConfig{APIKeyEnv: "LLMCORE_TEST_KEY", APIKey: "inline"}
	assert.Equal(t, "from-env", p.ResolveAPIKey())

	p = ProviderConfig{APIKeyEnv: "LLMCORE_TEST_KEY_UNSET", APIKey: "inline"}
	assert.Equal(t, "inline", p.ResolveAPIKey())

	p = ProviderConfig{APIKey: "inline"}
	assert.Equal(t, "inline", p.ResolveAPIKey())
}

func TestBuildRegistry(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	reg, err := BuildRegistry(cfg)
	require.NoError(t, err)

	infos := reg.Providers()
	require.Len(t, infos, 2)
	assert.Equal(t, "deepseek", infos[0].Name)
	assert.Equal(t, "DeepSeek", infos[0].Label)
	// thinking:true marks the compat endpoint reasoning-capable.
	assert.True(t, infos[0].Capabilities.Reasoning)
	assert.Equal(t, "openai", infos[1].Name)
	assert.True(t, infos[1].Capabilities.Streaming)
}
