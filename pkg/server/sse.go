package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumachat/llmcore/pkg/llm"
)

const heartbeatInterval = 15 * time.Second

// serveStream runs one turn and relays its events to the caller as SSE
// frames. Client disconnect cancels the turn; the in-flight provider call
// and tool executions are aborted, and anything already delivered stands.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, req *llm.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "response does not support streaming", http.StatusInternalServerError)
		return
	}

	h, err := s.manager.RunStream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")

	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.Cancel()
			// Drain so the worker can finish even with no reader.
			for range h.Events() {
			}
			return
		case ev, open := <-h.Events():
			if !open {
				_, _ = io.WriteString(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			frame, err := encodeFrame(ev)
			if err != nil {
				s.logger.Warn("encode sse frame", "err", err)
				continue
			}
			if _, err := w.Write(frame); err != nil {
				h.Cancel()
				for range h.Events() {
				}
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat %d\n\n", time.Now().Unix()); err != nil {
				h.Cancel()
				for range h.Events() {
				}
				return
			}
			flusher.Flush()
		}
	}
}

func encodeFrame(ev llm.StreamEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal SSE payload: %w", err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, body)), nil
}
