package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failure so callers can decide whether to retry,
// surface, or swallow it.
type ErrorKind string

const (
	KindNetwork          ErrorKind = "network"
	KindTimeout          ErrorKind = "timeout"
	KindRateLimit        ErrorKind = "rate_limit"
	KindAuth             ErrorKind = "auth"
	KindConfiguration    ErrorKind = "configuration"
	KindProtocol         ErrorKind = "protocol"
	KindToolExecution    ErrorKind = "tool_execution"
	KindCancelled        ErrorKind = "cancelled"
	KindConversationBusy ErrorKind = "conversation_busy"
)

// Error is the single failure type crossing package boundaries. Retryable
// marks transient conditions; RetryAfter carries a provider-suggested backoff
// when one was supplied (rate limiting).
type Error struct {
	Kind       ErrorKind
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("llm: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("llm: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Errorf builds an Error with a formatted message.
func Errorf(kind ErrorKind, retryable bool, format string, args ...any) *Error {
	return &Error{Kind: kind, Retryable: retryable, Message: fmt.Sprintf(format, args...)}
}

// WrapError folds cause into an Error, preserving an existing *Error as-is.
func WrapError(kind ErrorKind, retryable bool, cause error) *Error {
	var e *Error
	if errors.As(cause, &e) {
		return e
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Retryable: retryable, Message: msg, Cause: cause}
}

// AsError extracts an *Error from err when present.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err represents a transient condition.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func IsRateLimit(err error) bool { return IsKind(err, KindRateLimit) }
func IsAuth(err error) bool      { return IsKind(err, KindAuth) }
func IsCancelled(err error) bool { return IsKind(err, KindCancelled) }
func IsBusy(err error) bool      { return IsKind(err, KindConversationBusy) }
