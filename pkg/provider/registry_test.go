package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lumachat/llmcore/pkg/llm"
)

type stubAdapter struct {
	name string
	caps llm.Capabilities
}

func (a *stubAdapter) Name() string                   { return a.name }
func (a *stubAdapter) Capabilities() llm.Capabilities { return a.caps }

func (a *stubAdapter) Invoke(_ context.Context, _ *llm.ChatRequest, emit EmitFunc) error {
	return emit(llm.DoneEvent(llm.FinishNormal, llm.Usage{}))
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubAdapter{name: "OpenAI"}, "OpenAI Cloud"); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Lookup is case-insensitive on the normalized name.
	if _, err := r.Resolve("openai"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := r.Resolve(" OPENAI "); err != nil {
		t.Fatalf("resolve trimmed: %v", err)
	}

	_, err := r.Resolve("missing")
	if !llm.IsKind(err, llm.KindConfiguration) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("err = %v", err)
	}
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil, ""); err == nil {
		t.Fatal("nil adapter accepted")
	}
	if err := r.Register(&stubAdapter{name: ""}, ""); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := r.Register(&stubAdapter{name: "x"}, ""); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&stubAdapter{name: "X"}, ""); err == nil {
		t.Fatal("duplicate (case-folded) accepted")
	}
}

func TestRegistryProviders(t *testing.T) {
	r := NewRegistry()
	caps := llm.Capabilities{Streaming: true, Tools: true}
	if err := r.Register(&stubAdapter{name: "beta", caps: caps}, ""); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&stubAdapter{name: "alpha"}, "Alpha Cloud"); err != nil {
		t.Fatal(err)
	}
	infos := r.Providers()
	if len(infos) != 2 || infos[0].Name != "alpha" || infos[1].Name != "beta" {
		t.Fatalf("infos = %+v", infos)
	}
	if infos[0].Label != "Alpha Cloud" || infos[1].Label != "beta" {
		t.Fatalf("labels = %+v", infos)
	}
	if !infos[1].Capabilities.Tools {
		t.Fatalf("capabilities = %+v", infos[1].Capabilities)
	}
}

func TestMapContextError(t *testing.T) {
	base := context.Background()
	if got := MapContextError(base, nil); got != nil {
		t.Fatalf("nil err = %v", got)
	}

	cancelled, cancel := context.WithCancel(base)
	cancel()
	err := MapContextError(cancelled, context.Canceled)
	if !llm.IsCancelled(err) || llm.IsRetryable(err) {
		t.Fatalf("cancelled = %v", err)
	}

	expired, cancel2 := context.WithTimeout(base, time.Nanosecond)
	defer cancel2()
	<-expired.Done()
	err = MapContextError(expired, context.DeadlineExceeded)
	if !llm.IsKind(err, llm.KindTimeout) || !llm.IsRetryable(err) {
		t.Fatalf("deadline = %v", err)
	}

	// A live context passes the error through untouched.
	orig := llm.Errorf(llm.KindNetwork, true, "reset")
	if got := MapContextError(base, orig); got != error(orig) {
		t.Fatalf("live ctx = %v", got)
	}
}
