package provider

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lumachat/llmcore/pkg/llm"
)

const maxErrorBody = 4096

// ClassifyStatus maps an HTTP status from a provider onto the error taxonomy.
// Used both for raw HTTP adapters and for SDK errors that expose a status code.
func ClassifyStatus(providerName string, status int, detail string, cause error) *llm.Error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	e := &llm.Error{Cause: cause}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = llm.KindRateLimit
		e.Retryable = true
		e.Message = providerName + ": " + detail
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = llm.KindAuth
		e.Message = providerName + ": http " + strconv.Itoa(status) + ": " + detail
	case status == http.StatusRequestTimeout:
		e.Kind = llm.KindTimeout
		e.Retryable = true
		e.Message = providerName + ": " + detail
	case status >= 500:
		e.Kind = llm.KindNetwork
		e.Retryable = true
		e.Message = providerName + ": http " + strconv.Itoa(status) + ": " + detail
	default:
		e.Kind = llm.KindConfiguration
		e.Message = providerName + ": http " + strconv.Itoa(status) + ": " + detail
	}
	return e
}

// ClassifyResponse maps a non-2xx provider response onto the error taxonomy.
// Rate-limit responses carry the provider's Retry-After hint when supplied.
func ClassifyResponse(providerName string, resp *http.Response) *llm.Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body := strings.TrimSpace(string(raw))

	e := ClassifyStatus(providerName, resp.StatusCode, body, nil)
	if e.Kind == llm.KindRateLimit {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return e
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
