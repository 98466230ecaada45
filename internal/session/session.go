// Package session keeps the chat session id, the bounded chat history and
// the conversation context for one device.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/advisor-gateway/internal/domain"
	"github.com/ashureev/advisor-gateway/internal/shared"
	"github.com/google/uuid"
)

// Storage keys.
const (
	KeySessionID = "advisor_session_id"
	KeyHistory   = "advisor_chat_history"
	KeyContext   = "advisor_context"
)

const (
	readAttempts = 3
	readBackoff  = 20 * time.Millisecond
)

// ErrUnavailable is returned by storage that cannot be used at all.
var ErrUnavailable = errors.New("storage unavailable")

// Storage is a key-value store scoped to a single device.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// HistoryRecord is the persisted form of a transcript.
type HistoryRecord struct {
	SessionID   string               `json:"sessionId"`
	Messages    []domain.ChatMessage `json:"messages"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

type contextRecord struct {
	SessionID string                     `json:"sessionId"`
	Context   domain.ConversationContext `json:"context"`
}

// Helper reads and writes session state through a Storage.
// A nil Storage behaves as permanently unavailable storage.
type Helper struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewHelper creates a Helper over storage.
func NewHelper(storage Storage, logger *slog.Logger) *Helper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Helper{storage: storage, logger: logger, now: time.Now}
}

// SessionID returns the stored session id, creating and persisting one on
// first use. When storage cannot be read or written an ephemeral
// session_<unixmillis> id is returned and nothing is persisted.
func (h *Helper) SessionID(ctx context.Context) string {
	id, _ := h.CurrentSession(ctx)
	return id
}

// CurrentSession is SessionID that also reports whether the id is persisted.
// Records must never be written under an ephemeral id.
func (h *Helper) CurrentSession(ctx context.Context) (string, bool) {
	if h.storage == nil {
		return h.ephemeralID(), false
	}

	id, ok, err := h.get(ctx, KeySessionID)
	if err != nil {
		h.logger.Warn("session storage unavailable, using ephemeral id", "error", err)
		return h.ephemeralID(), false
	}
	if ok && id != "" {
		return id, true
	}

	id = h.newID()
	if err := h.storage.Set(ctx, KeySessionID, id); err != nil {
		h.logger.Warn("failed to persist session id, using ephemeral id", "error", err)
		return h.ephemeralID(), false
	}
	h.logger.Info("session created", "session_id", id)
	return id, true
}

// SaveHistory persists the last domain.HistoryLimit messages under the
// current session id. Failures are logged and swallowed.
func (h *Helper) SaveHistory(ctx context.Context, msgs []domain.ChatMessage) {
	id, persisted := h.CurrentSession(ctx)
	if !persisted {
		return
	}
	if err := h.WriteHistory(ctx, id, msgs); err != nil {
		h.logger.Warn("failed to save chat history", "session_id", id, "error", err)
	}
}

// LoadHistory returns the stored transcript when it belongs to the current
// session. Missing, corrupt, foreign or unreadable records yield an empty
// transcript.
func (h *Helper) LoadHistory(ctx context.Context) []domain.ChatMessage {
	id, persisted := h.CurrentSession(ctx)
	if !persisted {
		return []domain.ChatMessage{}
	}
	msgs, err := h.ReadHistory(ctx, id)
	if err != nil {
		h.logger.Warn("failed to load chat history", "error", err)
		return []domain.ChatMessage{}
	}
	return msgs
}

// WriteHistory stores the last domain.HistoryLimit messages of sessionID.
func (h *Helper) WriteHistory(ctx context.Context, sessionID string, msgs []domain.ChatMessage) error {
	if h.storage == nil {
		return ErrUnavailable
	}
	return h.setJSON(ctx, KeyHistory, HistoryRecord{
		SessionID:   sessionID,
		Messages:    domain.TrimHistory(msgs),
		LastUpdated: h.now(),
	})
}

// ReadHistory returns the transcript stored for sessionID. Only a failed
// storage read is an error; a missing, corrupt or foreign record is an empty
// transcript and may safely be overwritten.
func (h *Helper) ReadHistory(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	if h.storage == nil {
		return nil, ErrUnavailable
	}
	var rec HistoryRecord
	found, err := h.getJSON(ctx, KeyHistory, &rec)
	if err != nil {
		return nil, err
	}
	if !found || rec.SessionID != sessionID || rec.Messages == nil {
		return []domain.ChatMessage{}, nil
	}
	return rec.Messages, nil
}

// SaveContext persists the conversation context under the current session.
// Failures are logged and swallowed.
func (h *Helper) SaveContext(ctx context.Context, cc domain.ConversationContext) {
	id, persisted := h.CurrentSession(ctx)
	if !persisted {
		return
	}
	if err := h.WriteContext(ctx, id, cc); err != nil {
		h.logger.Warn("failed to save conversation context", "session_id", id, "error", err)
	}
}

// LoadContext returns the stored context of the current session, or nil.
func (h *Helper) LoadContext(ctx context.Context) *domain.ConversationContext {
	id, persisted := h.CurrentSession(ctx)
	if !persisted {
		return nil
	}
	cc, err := h.ReadContext(ctx, id)
	if err != nil {
		h.logger.Warn("failed to load conversation context", "error", err)
		return nil
	}
	return cc
}

// WriteContext stores the conversation context of sessionID.
func (h *Helper) WriteContext(ctx context.Context, sessionID string, cc domain.ConversationContext) error {
	if h.storage == nil {
		return ErrUnavailable
	}
	return h.setJSON(ctx, KeyContext, contextRecord{SessionID: sessionID, Context: cc})
}

// ReadContext returns the context stored for sessionID, or nil when there is
// none. Only a failed storage read is an error.
func (h *Helper) ReadContext(ctx context.Context, sessionID string) (*domain.ConversationContext, error) {
	if h.storage == nil {
		return nil, ErrUnavailable
	}
	var rec contextRecord
	found, err := h.getJSON(ctx, KeyContext, &rec)
	if err != nil {
		return nil, err
	}
	if !found || rec.SessionID != sessionID {
		return nil, nil
	}
	return &rec.Context, nil
}

// ResetSession starts a new session: a fresh id is persisted and the stored
// history and context are removed. The new id is returned.
func (h *Helper) ResetSession(ctx context.Context) string {
	if h.storage == nil {
		return h.ephemeralID()
	}

	id := h.newID()
	if err := h.storage.Set(ctx, KeySessionID, id); err != nil {
		h.logger.Warn("failed to persist new session id", "error", err)
		return h.ephemeralID()
	}
	for _, key := range []string{KeyHistory, KeyContext} {
		if err := h.storage.Delete(ctx, key); err != nil {
			h.logger.Warn("failed to clear session record", "key", key, "error", err)
		}
	}
	h.logger.Info("session reset", "session_id", id)
	return id
}

func (h *Helper) newID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", h.now().UnixMilli(), suffix)
}

func (h *Helper) ephemeralID() string {
	return fmt.Sprintf("session_%d", h.now().UnixMilli())
}

func (h *Helper) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return h.storage.Set(ctx, key, string(data))
}

// get reads key, retrying while SQLite reports a lock conflict.
func (h *Helper) get(ctx context.Context, key string) (string, bool, error) {
	var (
		raw string
		ok  bool
	)
	err := shared.RetryOnConflict(ctx, "get "+key, readAttempts, readBackoff, func() error {
		var err error
		raw, ok, err = h.storage.Get(ctx, key)
		return err
	})
	return raw, ok, err
}

// getJSON decodes key into v. A corrupt record is logged and reported as
// not found; only storage failures are returned.
func (h *Helper) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := h.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		h.logger.Warn("discarding corrupt session record", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}
