// Package chat runs product-advisor chat turns and exposes them over HTTP
// and WebSocket.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/advisor-gateway/internal/backend"
	"github.com/ashureev/advisor-gateway/internal/domain"
	"github.com/ashureev/advisor-gateway/internal/intent"
	"github.com/ashureev/advisor-gateway/internal/prompt"
	"github.com/ashureev/advisor-gateway/internal/session"
	"github.com/google/uuid"
)

// MaxMessageLength bounds a single user message in runes.
const MaxMessageLength = 2000

var (
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is required")
	// ErrMessageTooLong is returned when input exceeds MaxMessageLength.
	ErrMessageTooLong = errors.New("message is too long")
)

// Backend sends one turn to the remote advisor.
type Backend interface {
	Send(ctx context.Context, req backend.Request) *backend.Response
}

// StorageFunc returns the key-value storage of a device.
type StorageFunc func(deviceID string) session.Storage

// Reply is the outcome of one chat turn. Sequence is the persisted turn
// number of the session, so it keeps growing across restarts; it is 0 when
// the turn could not be persisted and must not be used for ordering.
type Reply struct {
	Sequence  int64                      `json:"sequence"`
	SessionID string                     `json:"sessionId"`
	Message   domain.ChatMessage         `json:"message"`
	Context   domain.ConversationContext `json:"context"`
}

// Service runs chat turns. Turns of the same device are processed one at a
// time.
type Service struct {
	backend Backend
	storage StorageFunc
	convLog ConversationLogger
	logger  *slog.Logger
	now     func() time.Time
	locks   keyedMutex
}

// NewService creates a chat service.
func NewService(b Backend, storage StorageFunc, convLog ConversationLogger, logger *slog.Logger) *Service {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: b,
		storage: storage,
		convLog: convLog,
		logger:  logger,
		now:     time.Now,
		locks:   keyedMutex{locks: make(map[string]*refMutex)},
	}
}

func (s *Service) helper(deviceID string) *session.Helper {
	var st session.Storage
	if s.storage != nil {
		st = s.storage(deviceID)
	}
	return session.NewHelper(st, s.logger.With("device_id", deviceID))
}

// Send processes one user message and returns the assistant reply. Backend
// failures are not errors: they come back as an assistant message with
// IsError set. Only invalid input is reported as an error.
func (s *Service) Send(ctx context.Context, deviceID, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	unlock := s.locks.Lock(deviceID)
	defer unlock()

	h := s.helper(deviceID)
	sessionID, persisted := h.CurrentSession(ctx)

	// A record that could not be read must not be overwritten: the turn
	// still runs, but only in memory.
	var (
		prev    *domain.ConversationContext
		history []domain.ChatMessage
	)
	keepHist, keepCtx := persisted, persisted
	if persisted {
		var err error
		if history, err = h.ReadHistory(ctx, sessionID); err != nil {
			s.logger.Warn("chat history unreadable, turn will not be stored",
				"device_id", deviceID, "session_id", sessionID, "error", err)
			keepHist = false
		}
		if prev, err = h.ReadContext(ctx, sessionID); err != nil {
			s.logger.Warn("conversation context unreadable, turn will not be stored",
				"device_id", deviceID, "session_id", sessionID, "error", err)
			keepCtx = false
		}
	}

	userMsg := domain.ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    domain.SenderUser,
		Timestamp: s.now(),
	}

	convCtx, in := intent.Analyze(text, prev)
	payload := prompt.Build(convCtx, in, sessionID, userMsg.ID)

	s.logger.Info("chat turn",
		"device_id", deviceID,
		"session_id", sessionID,
		"intent", in.Primary,
		"turn", convCtx.TurnCount,
		"message_length", len(text),
	)
	s.convLog.Log(ConversationLogEvent{
		DeviceID:   deviceID,
		SessionID:  sessionID,
		Channel:    "chat",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: text,
		Meta: map[string]any{
			"message_id": userMsg.ID,
			"intent":     in.Primary,
			"confidence": in.Confidence,
		},
	})

	resp := s.backend.Send(ctx, backend.Request{
		Message:      text,
		SessionID:    sessionID,
		Timestamp:    userMsg.Timestamp,
		SystemPrompt: payload.SystemPrompt,
		Metadata:     payload.Metadata,
	})

	convCtx.ProductsShown += len(resp.Products)
	reply := domain.ChatMessage{
		ID:           uuid.NewString(),
		Text:         resp.Message,
		Sender:       domain.SenderAssistant,
		Timestamp:    s.now(),
		Confidence:   resp.Confidence,
		ResponseTime: resp.ResponseTime,
		Suggestions:  resp.Suggestions,
		IsError:      resp.Failed(),
		Products:     resp.Products,
	}

	if keepHist {
		if err := h.WriteHistory(ctx, sessionID, append(history, userMsg, reply)); err != nil {
			s.logger.Warn("failed to save chat history", "device_id", deviceID, "session_id", sessionID, "error", err)
		}
	}
	var sequence int64
	if keepCtx {
		if err := h.WriteContext(ctx, sessionID, convCtx); err != nil {
			s.logger.Warn("failed to save conversation context", "device_id", deviceID, "session_id", sessionID, "error", err)
		} else {
			sequence = int64(convCtx.TurnCount)
		}
	}

	meta := map[string]any{
		"message_id":    reply.ID,
		"attempts":      resp.Attempts,
		"response_time": resp.ResponseTime,
		"products":      len(resp.Products),
	}
	if resp.Error != nil {
		meta["error_type"] = resp.Error.Type
		meta["error"] = resp.Error.TechnicalMessage
	}
	s.convLog.Log(ConversationLogEvent{
		DeviceID:   deviceID,
		SessionID:  sessionID,
		Channel:    "chat",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: reply.Text,
		Meta:       meta,
	})

	return &Reply{
		Sequence:  sequence,
		SessionID: sessionID,
		Message:   reply,
		Context:   convCtx,
	}, nil
}

// History returns the current session id and its stored transcript.
func (s *Service) History(ctx context.Context, deviceID string) (string, []domain.ChatMessage) {
	h := s.helper(deviceID)
	return h.SessionID(ctx), h.LoadHistory(ctx)
}

// SessionID returns the current session id of a device.
func (s *Service) SessionID(ctx context.Context, deviceID string) string {
	return s.helper(deviceID).SessionID(ctx)
}

// Reset starts a new session for the device and returns its id. It waits for
// an in-flight turn of the same device to finish.
func (s *Service) Reset(ctx context.Context, deviceID string) string {
	unlock := s.locks.Lock(deviceID)
	defer unlock()

	h := s.helper(deviceID)
	old := h.SessionID(ctx)
	id := h.ResetSession(ctx)

	s.convLog.Log(ConversationLogEvent{
		DeviceID:  deviceID,
		SessionID: old,
		Channel:   "chat",
		Direction: "internal",
		EventType: "session_reset",
		Meta:      map[string]any{"new_session_id": id},
	})
	return id
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
