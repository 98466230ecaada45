package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ashureev/advisor-gateway/internal/domain"
	"github.com/ashureev/advisor-gateway/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

// WebSocket frame types.
const (
	frameMessage  = "message"
	frameReset    = "reset"
	framePing     = "ping"
	frameResponse = "response"
	frameSession  = "session"
	framePong     = "pong"
	frameError    = "error"
)

// wsInbound is a frame sent by the browser.
type wsInbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsOutbound is a frame sent to the browser.
type wsOutbound struct {
	Type      string                      `json:"type"`
	Sequence  int64                       `json:"sequence,omitempty"`
	SessionID string                      `json:"sessionId,omitempty"`
	Message   *domain.ChatMessage         `json:"message,omitempty"`
	Context   *domain.ConversationContext `json:"context,omitempty"`
	Messages  []domain.ChatMessage        `json:"messages,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

// WebSocketHandler serves the chat over a WebSocket at /ws/chat.
type WebSocketHandler struct {
	svc            *Service
	rateLimiter    *RateLimiter
	originPatterns []string
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		http.Error(w, `{"error":"unknown device"}`, http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "device_id", deviceID)
		}
	}()
	ws.SetReadLimit(defaultMaxRequestBodySize)

	ctx := r.Context()
	sessionID, history := h.svc.History(ctx, deviceID)
	if err := h.write(ctx, ws, wsOutbound{Type: frameSession, SessionID: sessionID, Messages: history}); err != nil {
		return
	}

	slog.Info("Chat WebSocket connected", "device_id", deviceID, "session_id", sessionID)
	h.readLoop(ctx, ws, deviceID)
	slog.Info("Chat WebSocket closed", "device_id", deviceID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, deviceID string) {
	for {
		var in wsInbound
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket read error", "error", err, "device_id", deviceID)
			}
			return
		}

		out := h.dispatch(ctx, deviceID, in)
		if err := h.write(ctx, ws, out); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, deviceID string, in wsInbound) wsOutbound {
	switch in.Type {
	case frameMessage:
		if h.rateLimiter != nil && !h.rateLimiter.Allow(deviceID) {
			return wsOutbound{Type: frameError, Error: "rate limit exceeded"}
		}
		reply, err := h.svc.Send(ctx, deviceID, in.Content)
		if err != nil {
			return wsOutbound{Type: frameError, Error: err.Error()}
		}
		return wsOutbound{
			Type:      frameResponse,
			Sequence:  reply.Sequence,
			SessionID: reply.SessionID,
			Message:   &reply.Message,
			Context:   &reply.Context,
		}
	case frameReset:
		return wsOutbound{Type: frameSession, SessionID: h.svc.Reset(ctx, deviceID)}
	case framePing:
		return wsOutbound{Type: framePong}
	default:
		return wsOutbound{Type: frameError, Error: "unknown message type"}
	}
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, out wsOutbound) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, ws, out); err != nil {
		slog.Debug("WebSocket write error", "error", err)
		return err
	}
	return nil
}

// originPatterns converts allowed origins to the host patterns the
// WebSocket handshake checks against.
func originPatterns(allowed []string) []string {
	patterns := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
