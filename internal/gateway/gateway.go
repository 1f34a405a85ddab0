// Package gateway is the HTTP surface of the companion backend.
//
// DESIGN: One real endpoint. handleChat authenticates the caller, enforces
// the daily quota, synthesizes the system prompt from stored context, and
// re-frames the provider's SSE stream into the gateway's own wire format.
// Usage commit and memory extraction happen after the stream ends; the
// extraction runs detached so it never delays the response.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lampstand/companion-gateway/internal/background"
	"github.com/lampstand/companion-gateway/internal/config"
	"github.com/lampstand/companion-gateway/internal/contextstore"
	"github.com/lampstand/companion-gateway/internal/memory"
	"github.com/lampstand/companion-gateway/internal/monitoring"
	"github.com/lampstand/companion-gateway/internal/upstream"
)

// Gateway holds the wired collaborators for the chat endpoint.
type Gateway struct {
	cfg       *config.Config
	store     contextstore.Store
	upstream  *upstream.Client
	extractor *memory.Extractor
	runner    *background.Runner
	tracker   *monitoring.Tracker
}

// New creates a Gateway.
func New(cfg *config.Config, store contextstore.Store, up *upstream.Client, runner *background.Runner, tracker *monitoring.Tracker) *Gateway {
	return &Gateway{
		cfg:       cfg,
		store:     store,
		upstream:  up,
		extractor: memory.NewExtractor(up, store),
		runner:    runner,
		tracker:   tracker,
	}
}

// Routes returns the gateway's HTTP mux.
func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat", g.handleChat)
	mux.HandleFunc("/health", g.handleHealth)
	return mux
}

// handleHealth returns gateway health status. The store roundtrip resolves a
// token that cannot exist; ErrUnauthenticated proves the store answered.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if _, err := g.store.ResolveUser(r.Context(), "_health_"); err != nil && !errors.Is(err, contextstore.ErrUnauthenticated) {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
		"model":  g.upstream.Model(),
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeErrorCode writes a JSON error response with a machine-readable code.
func writeErrorCode(w http.ResponseWriter, msg, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

// writeErrorDetails writes a JSON error response with diagnostic details.
func writeErrorDetails(w http.ResponseWriter, msg, details string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "details": details})
}

// getRequestID gets or generates a request ID.
func getRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}
