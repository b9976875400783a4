// Package server exposes the manager over a minimal HTTP API: a chat
// endpoint with unary and SSE modes, and a provider discovery endpoint.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/manager"
)

// Server routes HTTP traffic to a Manager.
type Server struct {
	manager *manager.Manager
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a Server with pre-wired routes.
func New(mgr *manager.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		manager: mgr,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("/v1/chat", s.handleChat)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// ServeHTTP implements http.Handler and delegates to the internal mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// modelEntry is one row of the discovery endpoint.
type modelEntry struct {
	Provider     string           `json:"provider"`
	Label        string           `json:"label"`
	Capabilities llm.Capabilities `json:"capabilities"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	infos := s.manager.Providers()
	entries := make([]modelEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, modelEntry{
			Provider:     info.Name,
			Label:        info.Label,
			Capabilities: info.Capabilities,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": entries})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var req llm.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, llm.Errorf(llm.KindConfiguration, false, "invalid JSON payload: %v", err))
		return
	}

	if req.Options.Stream {
		s.serveStream(w, r, &req)
		return
	}

	result, err := s.manager.Run(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	payload := map[string]any{"error": err.Error()}
	if e, ok := llm.AsError(err); ok {
		payload["kind"] = string(e.Kind)
		switch e.Kind {
		case llm.KindConfiguration, llm.KindProtocol:
			status = http.StatusBadRequest
		case llm.KindAuth:
			status = http.StatusUnauthorized
		case llm.KindRateLimit:
			status = http.StatusTooManyRequests
		case llm.KindConversationBusy:
			status = http.StatusConflict
		case llm.KindTimeout:
			status = http.StatusGatewayTimeout
		case llm.KindCancelled:
			// Client went away; 499 in the nginx tradition.
			status = 499
		}
	}
	writeJSON(w, status, payload)
}
