package chat

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "global", "all.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		DeviceID:   "dev-1",
		SessionID:  "session_1_abc",
		Channel:    "chat",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: "busco   un\x07 televisor",
	})

	line := waitForLogLine(t, filepath.Join(dir, "dev-1", "session_1_abc.ndjson"))
	var got ConversationLogEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "busco   un\x07 televisor" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content != "busco un televisor" {
		t.Fatalf("unexpected cleaned content: %q", got.Content)
	}
	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be filled in")
	}
	waitForLogLine(t, global)
}

func TestConversationLoggerCloseFlushesAndStops(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: true, Dir: dir, QueueSize: 4}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	logger.Log(ConversationLogEvent{DeviceID: "d", SessionID: "s", ContentRaw: "uno"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	logger.Log(ConversationLogEvent{DeviceID: "d", SessionID: "s", ContentRaw: "dos"})

	data, err := os.ReadFile(filepath.Join(dir, "d", "s.ndjson"))
	if err != nil {
		t.Fatalf("expected flushed log: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Errorf("expected exactly one line, got %d", n)
	}
}

func TestDisabledConversationLogger(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	logger.Log(ConversationLogEvent{ContentRaw: "ignored"})
	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSafePathPart(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"session_1_abc": "session_1_abc",
		"../../etc":     ".._.._etc",
		"..":            "unknown",
		"":              "unknown",
	}
	for in, want := range cases {
		if got := safePathPart(in); got != want {
			t.Errorf("safePathPart(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if !strings.Contains(clean, "error plain") {
		t.Fatalf("expected readable text to remain: %q", clean)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
