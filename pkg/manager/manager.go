// Package manager is the single entry point for dispatching chat turns. It
// resolves providers through the registry, serializes turns per conversation,
// applies retry policy for transient dispatch failures, and exposes the
// orchestration loop's events to callers.
package manager

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/orchestrator"
	"github.com/lumachat/llmcore/pkg/provider"
)

// RetryConfig bounds the backoff loop around the initial dispatch.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
	return c
}

// Config assembles a Manager.
type Config struct {
	Registry    *provider.Registry
	Tools       orchestrator.ToolRunner
	Retry       RetryConfig
	MaxRounds   int
	ToolFailure llm.ToolFailurePolicy
	Logger      *slog.Logger
}

// Manager owns no durable state: conversations live with the external
// conversation store, and the busy table below only tracks in-flight turns.
type Manager struct {
	registry    atomic.Pointer[provider.Registry]
	tools       orchestrator.ToolRunner
	retry       RetryConfig
	maxRounds   int
	toolFailure llm.ToolFailurePolicy
	logger      *slog.Logger

	mu     sync.Mutex
	active map[string]*Handle
}

// New builds a Manager from cfg. Registry must not be nil.
func New(cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, llm.Errorf(llm.KindConfiguration, false, "provider registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		tools:       cfg.Tools,
		retry:       cfg.Retry.withDefaults(),
		maxRounds:   cfg.MaxRounds,
		toolFailure: cfg.ToolFailure,
		logger:      logger,
		active:      map[string]*Handle{},
	}
	m.registry.Store(cfg.Registry)
	return m, nil
}

// SwapRegistry atomically replaces the provider table (config reload). The
// registries themselves stay immutable; in-flight turns keep the adapter they
// resolved at dispatch time.
func (m *Manager) SwapRegistry(reg *provider.Registry) {
	if reg != nil {
		m.registry.Store(reg)
	}
}

// Providers lists the currently registered providers.
func (m *Manager) Providers() []provider.Info {
	return m.registry.Load().Providers()
}

// Run dispatches one turn and blocks until it resolves. Events are not
// streamed anywhere; use RunStream for incremental delivery.
func (m *Manager) Run(ctx context.Context, req *llm.ChatRequest) (*llm.TurnResult, error) {
	h, err := m.start(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	for range h.Events() {
		// drain; the handle accumulates the result
	}
	return h.Result(), h.Err()
}

// RunStream dispatches one turn and returns a handle whose Events channel
// delivers normalized events as they arrive, ending with a terminal Done or
// Error event. The handle exposes cancellation and the final TurnResult.
func (m *Manager) RunStream(ctx context.Context, req *llm.ChatRequest) (*Handle, error) {
	return m.start(ctx, req, defaultEventBuffer)
}

const defaultEventBuffer = 16

func (m *Manager) start(ctx context.Context, req *llm.ChatRequest, buffer int) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Resolve before any network activity so configuration mistakes never
	// cost a connection.
	adapter, err := m.registry.Load().Resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	if err := adapter.Capabilities().Check(req.Options); err != nil {
		return nil, err
	}

	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" {
		convID = uuid.NewString()
	}

	h := newHandle(convID, uuid.NewString(), buffer)
	if err := m.acquire(convID, h); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	orch := orchestrator.New(adapter, m.tools, orchestrator.Config{
		MaxRounds:   m.maxRounds,
		ToolFailure: m.toolFailure,
		Logger:      m.logger.With("conversation", convID, "turn", h.TurnID),
	})

	go func() {
		defer m.release(convID, h)
		defer h.close()
		defer cancel()
		result, runErr := m.runWithRetry(runCtx, orch, req, h)
		h.finish(result, runErr)
	}()

	return h, nil
}

func (m *Manager) acquire(convID string, h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[convID]; busy {
		// A second concurrent turn would make tool side effects and
		// persisted message order ambiguous.
		return llm.Errorf(llm.KindConversationBusy, false, "conversation %s already has an active turn", convID)
	}
	m.active[convID] = h
	return nil
}

func (m *Manager) release(convID string, h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[convID] == h {
		delete(m.active, convID)
	}
}
