package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/advisor-gateway/internal/api"
	"github.com/ashureev/advisor-gateway/internal/domain"
	"github.com/ashureev/advisor-gateway/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (64KB).
const defaultMaxRequestBodySize = 64 << 10

type chatRequest struct {
	Message string `json:"message"`
}

type historyResponse struct {
	SessionID string               `json:"sessionId"`
	Messages  []domain.ChatMessage `json:"messages"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

// Handler serves the chat endpoints.
type Handler struct {
	svc         *Service
	rateLimiter *RateLimiter
	maxBodySize int64
	ws          *WebSocketHandler
}

// NewHandler creates a chat handler. limiter may be nil to disable limiting.
func NewHandler(svc *Service, limiter *RateLimiter, allowedOrigins []string) *Handler {
	h := &Handler{
		svc:         svc,
		rateLimiter: limiter,
		maxBodySize: defaultMaxRequestBodySize,
	}
	h.ws = &WebSocketHandler{svc: svc, rateLimiter: limiter, originPatterns: originPatterns(allowedOrigins)}
	return h
}

// RegisterRoutes registers chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.HandleChat)
	r.Get("/api/history", h.HandleHistory)
	r.Get("/api/session", h.HandleSession)
	r.Post("/api/session/reset", h.HandleReset)
	r.Get("/ws/chat", h.ws.ServeHTTP)
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		api.Error(w, http.StatusUnauthorized, "unknown device")
		return
	}

	if h.rateLimiter != nil && !h.rateLimiter.Allow(deviceID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.svc.Send(r.Context(), deviceID, req.Message)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrMessageTooLong) {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("chat turn failed", "device_id", deviceID, "request_id", chiMiddleware.GetReqID(r.Context()), "error", err)
		api.Error(w, http.StatusInternalServerError, "chat failed")
		return
	}

	api.JSON(w, http.StatusOK, reply)
}

// HandleHistory handles GET /api/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		api.Error(w, http.StatusUnauthorized, "unknown device")
		return
	}
	sessionID, msgs := h.svc.History(r.Context(), deviceID)
	api.JSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Messages: msgs})
}

// HandleSession handles GET /api/session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		api.Error(w, http.StatusUnauthorized, "unknown device")
		return
	}
	api.JSON(w, http.StatusOK, sessionResponse{SessionID: h.svc.SessionID(r.Context(), deviceID)})
}

// HandleReset handles POST /api/session/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		api.Error(w, http.StatusUnauthorized, "unknown device")
		return
	}
	id := h.svc.Reset(r.Context(), deviceID)
	slog.Info("session reset", "device_id", deviceID, "session_id", id)
	api.JSON(w, http.StatusOK, sessionResponse{SessionID: id})
}
