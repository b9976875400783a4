package provider

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lumachat/llmcore/pkg/llm"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  llm.ErrorKind
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, llm.KindRateLimit, true},
		{"unauthorized", http.StatusUnauthorized, llm.KindAuth, false},
		{"forbidden", http.StatusForbidden, llm.KindAuth, false},
		{"request timeout", http.StatusRequestTimeout, llm.KindTimeout, true},
		{"server error", http.StatusInternalServerError, llm.KindNetwork, true},
		{"bad gateway", http.StatusBadGateway, llm.KindNetwork, true},
		{"bad request", http.StatusBadRequest, llm.KindConfiguration, false},
		{"not found", http.StatusNotFound, llm.KindConfiguration, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ClassifyStatus("acme", tt.status, "boom", nil)
			if e.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", e.Kind, tt.wantKind)
			}
			if e.Retryable != tt.retryable {
				t.Fatalf("retryable = %v, want %v", e.Retryable, tt.retryable)
			}
			if !strings.Contains(e.Message, "acme") {
				t.Fatalf("message %q missing provider name", e.Message)
			}
		})
	}
}

func TestClassifyStatusDefaultsDetail(t *testing.T) {
	e := ClassifyStatus("acme", http.StatusServiceUnavailable, "", nil)
	if !strings.Contains(e.Message, http.StatusText(http.StatusServiceUnavailable)) {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestClassifyResponseRetryAfter(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"7"}},
		Body:       io.NopCloser(strings.NewReader(`{"error":"slow down"}`)),
	}
	e := ClassifyResponse("acme", resp)
	if e.Kind != llm.KindRateLimit || !e.Retryable {
		t.Fatalf("err = %+v", e)
	}
	if e.RetryAfter != 7*time.Second {
		t.Fatalf("retry after = %s", e.RetryAfter)
	}
	if !strings.Contains(e.Message, "slow down") {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestClassifyResponseIgnoresRetryAfterOffRateLimit(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusInternalServerError,
		Header:     http.Header{"Retry-After": []string{"30"}},
		Body:       io.NopCloser(strings.NewReader("oops")),
	}
	e := ClassifyResponse("acme", resp)
	if e.RetryAfter != 0 {
		t.Fatalf("retry after = %s", e.RetryAfter)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter(""); d != 0 {
		t.Fatalf("empty = %s", d)
	}
	if d := parseRetryAfter("12"); d != 12*time.Second {
		t.Fatalf("seconds = %s", d)
	}
	if d := parseRetryAfter("-3"); d != 0 {
		t.Fatalf("negative = %s", d)
	}
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	if d := parseRetryAfter(future); d <= 0 || d > 90*time.Second {
		t.Fatalf("http date = %s", d)
	}
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if d := parseRetryAfter(past); d != 0 {
		t.Fatalf("past date = %s", d)
	}
	if d := parseRetryAfter("garbage"); d != 0 {
		t.Fatalf("garbage = %s", d)
	}
}
