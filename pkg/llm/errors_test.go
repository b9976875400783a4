package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorf(t *testing.T) {
	err := Errorf(KindRateLimit, true, "throttled by %s", "upstream")
	if err.Kind != KindRateLimit || !err.Retryable {
		t.Fatalf("err = %+v", err)
	}
	if err.Error() != "llm: rate_limit: throttled by upstream" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestWrapErrorPreservesExisting(t *testing.T) {
	orig := &Error{Kind: KindCancelled, Message: "caller went away"}
	wrapped := WrapError(KindNetwork, true, fmt.Errorf("dispatch: %w", orig))
	if wrapped != orig {
		t.Fatalf("wrapped = %+v, want original preserved", wrapped)
	}
}

func TestWrapErrorFoldsPlainError(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := WrapError(KindNetwork, true, cause)
	if wrapped.Kind != KindNetwork || !wrapped.Retryable || wrapped.Message != "connection reset" {
		t.Fatalf("wrapped = %+v", wrapped)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
}

func TestKindHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"rate limit", Errorf(KindRateLimit, true, "x"), IsRateLimit, true},
		{"auth", Errorf(KindAuth, false, "x"), IsAuth, true},
		{"cancelled", Errorf(KindCancelled, false, "x"), IsCancelled, true},
		{"busy", Errorf(KindConversationBusy, false, "x"), IsBusy, true},
		{"wrapped", fmt.Errorf("outer: %w", Errorf(KindAuth, false, "x")), IsAuth, true},
		{"plain error", errors.New("x"), IsRateLimit, false},
		{"nil", nil, IsAuth, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&Error{Kind: KindNetwork, Retryable: true}) {
		t.Fatal("retryable error reported as permanent")
	}
	if IsRetryable(&Error{Kind: KindAuth}) {
		t.Fatal("permanent error reported as retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain error reported as retryable")
	}
}

func TestRetryAfterSurvivesWrapping(t *testing.T) {
	err := &Error{Kind: KindRateLimit, Retryable: true, RetryAfter: 7 * time.Second}
	got, ok := AsError(fmt.Errorf("attempt 1: %w", err))
	if !ok || got.RetryAfter != 7*time.Second {
		t.Fatalf("got = %+v ok=%v", got, ok)
	}
}
