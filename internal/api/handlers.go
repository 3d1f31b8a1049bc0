package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/fieldsync/internal/remote"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Backend string `json:"backend"`
}

// Pinger is implemented by backends that can check their own connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler implements the API handlers
type Handler struct {
	rows    remote.Service
	apiKey  string
	version string
	backend string
}

// NewHandler creates a Handler serving rows from the given backend.
// backend names it in health responses.
func NewHandler(rows remote.Service, apiKey, version, backend string) *Handler {
	return &Handler{
		rows:    rows,
		apiKey:  apiKey,
		version: version,
		backend: backend,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.rows.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			slog.Error("backend ping failed", "component", "api", "backend", h.backend, "error", err)
			WriteProblem(w, r, http.StatusServiceUnavailable, "Backend unavailable")
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Backend: h.backend,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
