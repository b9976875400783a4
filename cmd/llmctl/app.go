package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lumachat/llmcore/pkg/config"
	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/manager"
	"github.com/lumachat/llmcore/pkg/telemetry"
	"github.com/lumachat/llmcore/pkg/tool"
	"github.com/lumachat/llmcore/pkg/tool/builtin"
	"github.com/lumachat/llmcore/pkg/tool/mcptools"
)

const serviceVersion = "0.1.0"

const mcpCallTimeout = 30 * time.Second

// app bundles the wired runtime shared by the chat and serve commands.
type app struct {
	cfg       *config.Config
	manager   *manager.Manager
	tools     *tool.Registry
	mcp       *mcptools.Manager
	telemetry *telemetry.Manager
	logger    *slog.Logger
}

// buildApp loads the config file and assembles the full runtime: telemetry,
// provider registry, MCP tool servers, and the dispatch manager.
func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	tm, err := telemetry.NewManager(telemetry.Config{
		ServiceName:    pickString(cfg.Telemetry.ServiceName, "llmcore"),
		ServiceVersion: serviceVersion,
		Environment:    cfg.Telemetry.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	telemetry.SetDefault(tm)

	registry, err := config.BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, telemetry: tm, logger: logger}
	a.tools = tool.NewRegistry()
	for _, exec := range builtin.All() {
		if err := a.tools.Register(exec); err != nil {
			return nil, fmt.Errorf("register builtin %s: %w", exec.Name(), err)
		}
	}
	if len(cfg.MCP) > 0 {
		a.mcp, err = mcptools.NewManager(mcpServerConfigs(cfg.MCP), 0)
		if err != nil {
			return nil, err
		}
		executors, err := a.mcp.Executors(ctx)
		if err != nil {
			return nil, fmt.Errorf("mcp tools: %w", err)
		}
		for _, exec := range executors {
			if err := a.tools.Register(exec); err != nil {
				return nil, fmt.Errorf("register tool %s: %w", exec.Name(), err)
			}
		}
	}

	a.manager, err = manager.New(manager.Config{
		Registry: registry,
		Tools:    a.tools,
		Retry: manager.RetryConfig{
			MaxAttempts:     cfg.Runtime.MaxAttempts,
			InitialInterval: cfg.Runtime.InitialInterval.Std(),
			MaxInterval:     cfg.Runtime.MaxInterval.Std(),
		},
		MaxRounds:   cfg.Runtime.MaxRounds,
		ToolFailure: llm.ToolFailurePolicy(cfg.Runtime.ToolFailure),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.mcp != nil {
		if err := a.mcp.Close(); err != nil {
			a.logger.Warn("mcp shutdown", "error", err)
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", "error", err)
		}
	}
}

func mcpServerConfigs(entries []config.MCPServerConfig) []mcptools.ServerConfig {
	out := make([]mcptools.ServerConfig, 0, len(entries))
	for _, e := range entries {
		out = append(out, mcptools.ServerConfig{
			Name:        e.Name,
			Transport:   e.Transport,
			Command:     e.Command,
			Args:        e.Args,
			Env:         e.Env,
			URL:         e.URL,
			CallTimeout: mcpCallTimeout,
		})
	}
	return out
}

func pickString(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
