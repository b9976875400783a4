package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	writeConfigFile(t, path, `{"providers":[{"name":"a","kind":"openai"}]}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	w, err := Watch(ctx, path, nil, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, `{"providers":[{"name":"a","kind":"openai"},{"name":"b","kind":"gemini"}]}`)

	select {
	case cfg := <-reloaded:
		if len(cfg.Providers) != 2 {
			t.Fatalf("providers = %d", len(cfg.Providers))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatchKeepsPreviousConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	writeConfigFile(t, path, `{"providers":[{"name":"a","kind":"openai"}]}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	w, err := Watch(ctx, path, nil, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	// Invalid payload: the callback must not fire for it.
	writeConfigFile(t, path, `{"providers":[]}`)

	select {
	case cfg := <-reloaded:
		t.Fatalf("unexpected reload with %d providers", len(cfg.Providers))
	case <-time.After(1500 * time.Millisecond):
	}

	// A subsequent valid write recovers.
	writeConfigFile(t, path, `{"providers":[{"name":"c","kind":"anthropic"}]}`)
	select {
	case cfg := <-reloaded:
		if len(cfg.Providers) != 1 || cfg.Providers[0].Name != "c" {
			t.Fatalf("config = %+v", cfg.Providers)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("recovery reload never fired")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := Watch(ctx, filepath.Join(t.TempDir(), "nope", "cfg.yaml"), nil, func(*Config) {})
	if err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}
