// Package builtin ships a small set of ready-made tool executors for the CLI
// and for quick integration tests, so a tool-enabled turn works without any
// MCP server configured.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lumachat/llmcore/pkg/tool"
)

// maxFetchBytes caps how much of a fetched body is handed back to the model.
const maxFetchBytes = 64 * 1024

// All returns the builtin executors.
func All() []tool.Executor {
	return []tool.Executor{CurrentTime(), FetchURL(nil)}
}

// CurrentTime reports the wall-clock time, optionally in an IANA timezone.
func CurrentTime() *tool.Func {
	return tool.NewFunc(
		"current_time",
		"Returns the current date and time, optionally in a specific IANA timezone.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC.",
				},
			},
		},
		func(_ context.Context, raw json.RawMessage) (any, error) {
			var args struct {
				Timezone string `json:"timezone"`
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("decode arguments: %w", err)
				}
			}
			loc := time.UTC
			if args.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(args.Timezone)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", args.Timezone)
				}
			}
			now := time.Now().In(loc)
			return map[string]any{
				"timezone": loc.String(),
				"rfc3339":  now.Format(time.RFC3339),
				"weekday":  now.Weekday().String(),
			}, nil
		},
	)
}

// FetchURL retrieves a web page over GET and returns a truncated body. A nil
// client uses a default with a 15s timeout.
func FetchURL(client *http.Client) *tool.Func {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return tool.NewFunc(
		"fetch_url",
		"Fetches an http(s) URL with GET and returns status plus the first 64KiB of the body.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Absolute http or https URL to fetch.",
				},
			},
			"required": []any{"url"},
		},
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
			if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
				return nil, fmt.Errorf("unsupported URL %q", args.URL)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			truncated := false
			if len(body) > maxFetchBytes {
				body = body[:maxFetchBytes]
				truncated = true
			}
			return map[string]any{
				"status":       resp.StatusCode,
				"content_type": resp.Header.Get("Content-Type"),
				"body":         string(body),
				"truncated":    truncated,
			}, nil
		},
	)
}
