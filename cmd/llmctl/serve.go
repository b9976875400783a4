package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lumachat/llmcore/pkg/config"
	"github.com/lumachat/llmcore/pkg/server"
)

func serveCommand(ctx context.Context, argv []string, cfgPath string, streams ioStreams) error {
	set := flag.NewFlagSet("serve", flag.ContinueOnError)
	set.SetOutput(streams.err)
	addrFlag := set.String("addr", "", "Listen address; overrides server.addr from the config file.")
	watchFlag := set.Bool("watch", true, "Reload providers when the config file changes.")
	configFlag := set.String("config", cfgPath, "Path to the gateway config file.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: llmctl serve [flags]")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
		fmt.Fprintln(streams.err, "\nRoutes:")
		fmt.Fprintln(streams.err, "  POST /v1/chat    Run a chat turn (SSE when options.stream is true)")
		fmt.Fprintln(streams.err, "  GET  /v1/models  List registered providers")
		fmt.Fprintln(streams.err, "  GET  /healthz    Health probe")
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	a, err := buildApp(ctx, *configFlag)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if *watchFlag {
		watcher, err := config.Watch(ctx, a.cfg.SourcePath, a.logger, func(next *config.Config) {
			registry, err := config.BuildRegistry(next)
			if err != nil {
				a.logger.Error("config reload rejected", "error", err)
				return
			}
			a.manager.SwapRegistry(registry)
			a.logger.Info("providers reloaded", "count", len(next.Providers))
		})
		if err != nil {
			a.logger.Warn("config watch unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	addr := strings.TrimSpace(*addrFlag)
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer listener.Close()
	srv := &http.Server{Handler: server.New(a.manager, a.logger)}
	if streams.out != nil {
		fmt.Fprintf(streams.out, "llmctl serve listening on http://%s\n", listener.Addr())
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
