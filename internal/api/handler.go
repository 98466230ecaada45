// Package api provides shared HTTP helpers and the status endpoints of the
// advisor gateway.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/advisor-gateway/internal/backend"
	"github.com/ashureev/advisor-gateway/internal/prompt"
	"github.com/go-chi/chi/v5"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusSource yields the latest backend health result.
type StatusSource interface {
	Latest(ctx context.Context) backend.HealthResult
}

// ClientInfo is the non-secret configuration the UI may show.
type ClientInfo struct {
	Contract        backend.Contract `json:"contract"`
	MaxRetries      int              `json:"maxRetries"`
	TimeoutMs       int64            `json:"timeoutMs"`
	SlowThresholdMs int64            `json:"slowThresholdMs"`
}

// Handler serves status, schema and config endpoints.
type Handler struct {
	status StatusSource
	info   ClientInfo
}

// NewHandler creates a Handler reporting status from src.
func NewHandler(src StatusSource, cfg backend.Config) *Handler {
	return &Handler{
		status: src,
		info: ClientInfo{
			Contract:        cfg.Contract,
			MaxRetries:      cfg.MaxRetries,
			TimeoutMs:       cfg.Timeout.Milliseconds(),
			SlowThresholdMs: cfg.SlowThreshold.Milliseconds(),
		},
	}
}

// RegisterRoutes registers the status routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/status", h.GetStatus)
	r.Get("/api/config", h.GetConfig)
	r.Get("/api/schema/metadata", h.GetMetadataSchema)
}

// GetStatus reports whether the advisor backend is online, slow or offline.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.status.Latest(r.Context()))
}

// GetConfig returns the backend client settings for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.info)
}

// GetMetadataSchema returns the JSON Schema of the request metadata sent to
// the backend.
func (h *Handler) GetMetadataSchema(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(prompt.MetadataSchema()); err != nil {
		http.Error(w, `{"error": "failed to encode schema"}`, http.StatusInternalServerError)
	}
}
