// Package mcptools exposes tools served by MCP servers as local executors,
// so the orchestrator can dispatch to them like any built-in tool.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/tool"
)

// ServerConfig declares one MCP server endpoint.
type ServerConfig struct {
	Name string
	// Prefix namespaces exposed tool names; defaults to Name.
	Prefix string
	// Transport is "stdio", "sse", or "http".
	Transport string

	// Stdio transport.
	Command string
	Args    []string
	Env     map[string]string

	// HTTP transports.
	URL string

	// CallTimeout bounds each tool invocation.
	CallTimeout time.Duration
}

// Manager maintains MCP client sessions and converts the servers' tools into
// executors. Sessions are dialed lazily on first use and reused after.
type Manager struct {
	mu      sync.Mutex
	servers []*server
	cache   []tool.Executor
	cacheAt time.Time
	ttl     time.Duration
}

type server struct {
	cfg     ServerConfig
	prefix  string
	client  *mcp.Client
	session *mcp.ClientSession
}

// NewManager validates the server configs and builds a manager. cacheTTL <= 0
// caches the tool list for the manager's lifetime.
func NewManager(servers []ServerConfig, cacheTTL time.Duration) (*Manager, error) {
	out := make([]*server, 0, len(servers))
	for i, cfg := range servers {
		cfg.Name = strings.TrimSpace(cfg.Name)
		if cfg.Name == "" {
			return nil, fmt.Errorf("mcptools: servers[%d] missing name", i)
		}
		if cfg.Transport == "" {
			cfg.Transport = "stdio"
		}
		switch cfg.Transport {
		case "stdio":
			if strings.TrimSpace(cfg.Command) == "" {
				return nil, fmt.Errorf("mcptools: server %q requires command for stdio transport", cfg.Name)
			}
		case "sse", "http":
			if strings.TrimSpace(cfg.URL) == "" {
				return nil, fmt.Errorf("mcptools: server %q requires url for %s transport", cfg.Name, cfg.Transport)
			}
		default:
			return nil, fmt.Errorf("mcptools: server %q has unsupported transport %q", cfg.Name, cfg.Transport)
		}
		prefix := strings.TrimSpace(cfg.Prefix)
		if prefix == "" {
			prefix = cfg.Name
		}
		out = append(out, &server{
			cfg:    cfg,
			prefix: prefix,
			client: mcp.NewClient(&mcp.Implementation{
				Name:    "llmcore",
				Version: "0.1.0",
			}, nil),
		})
	}
	return &Manager{servers: out, ttl: cacheTTL}, nil
}

// Close shuts down all open sessions.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []string
	for _, srv := range m.servers {
		if srv.session == nil {
			continue
		}
		if err := srv.session.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", srv.cfg.Name, err))
		}
		srv.session = nil
	}
	m.cache = nil
	if len(errs) > 0 {
		return fmt.Errorf("mcptools: close sessions: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Executors lists all tools exposed by the configured servers, namespaced by
// server prefix.
func (m *Manager) Executors(ctx context.Context) ([]tool.Executor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cache) > 0 && (m.ttl <= 0 || time.Since(m.cacheAt) <= m.ttl) {
		return append([]tool.Executor(nil), m.cache...), nil
	}

	byName := map[string]tool.Executor{}
	for _, srv := range m.servers {
		session, err := m.sessionLocked(ctx, srv)
		if err != nil {
			return nil, err
		}
		for mt, iterErr := range session.Tools(ctx, nil) {
			if iterErr != nil {
				return nil, fmt.Errorf("mcptools: list tools from %s: %w", srv.cfg.Name, iterErr)
			}
			if mt == nil || strings.TrimSpace(mt.Name) == "" {
				continue
			}
			remote := strings.TrimSpace(mt.Name)
			name := srv.prefix + "__" + remote
			if _, dup := byName[name]; dup {
				return nil, fmt.Errorf("mcptools: duplicate exposed tool name %q", name)
			}
			byName[name] = &remoteTool{
				manager:     m,
				server:      srv,
				name:        name,
				remoteName:  remote,
				description: mt.Description,
				parameters:  normalizeSchema(mt.InputSchema),
				timeout:     srv.cfg.CallTimeout,
			}
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]tool.Executor, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	m.cache = append([]tool.Executor(nil), out...)
	m.cacheAt = time.Now()
	return out, nil
}

func (m *Manager) sessionLocked(ctx context.Context, srv *server) (*mcp.ClientSession, error) {
	if srv.session != nil {
		return srv.session, nil
	}
	transport, err := buildTransport(srv.cfg)
	if err != nil {
		return nil, err
	}
	session, err := srv.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptools: connect %s: %w", srv.cfg.Name, err)
	}
	srv.session = session
	return session, nil
}

func buildTransport(cfg ServerConfig) (mcp.Transport, error) {
	switch cfg.Transport {
	case "stdio":
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			env := os.Environ()
			for k, v := range cfg.Env {
				env = append(env, k+"="+v)
			}
			cmd.Env = env
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: cfg.URL}, nil
	case "http":
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL}, nil
	default:
		return nil, fmt.Errorf("mcptools: unsupported transport %q", cfg.Transport)
	}
}

func normalizeSchema(schema any) map[string]any {
	if m, ok := schema.(map[string]any); ok && len(m) > 0 {
		return m
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || len(out) == 0 {
		return map[string]any{"type": "object"}
	}
	return out
}

type remoteTool struct {
	manager     *Manager
	server      *server
	name        string
	remoteName  string
	description string
	parameters  map[string]any
	timeout     time.Duration
}

var _ tool.Executor = (*remoteTool)(nil)

func (t *remoteTool) Name() string { return t.name }

func (t *remoteTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	t.manager.mu.Lock()
	session, err := t.manager.sessionLocked(ctx, t.server)
	t.manager.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, fmt.Errorf("mcptools: decode arguments for %s: %w", t.name, err)
		}
	}
	if decoded == nil {
		decoded = map[string]any{}
	}

	callCtx := ctx
	cancel := func() {}
	if t.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	defer cancel()

	res, err := session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      t.remoteName,
		Arguments: decoded,
	})
	if err != nil {
		return nil, fmt.Errorf("mcptools: call %s/%s: %w", t.server.cfg.Name, t.remoteName, err)
	}
	if res == nil {
		return map[string]any{"ok": true}, nil
	}

	text := extractText(res.Content)
	if res.IsError {
		if strings.TrimSpace(text) == "" {
			text = "mcp tool reported an error"
		}
		return nil, fmt.Errorf("%s", text)
	}

	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	if text != "" {
		return text, nil
	}
	return map[string]any{"ok": true}, nil
}

func extractText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			if text := strings.TrimSpace(tc.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
