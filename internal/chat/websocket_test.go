package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func dialChat(t *testing.T, svc *Service) (*websocket.Conn, context.Context) {
	t.Helper()

	srv := httptest.NewServer(newTestRouter(t, svc, nil, testDevice))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) wsOutbound {
	t.Helper()
	var out wsOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return out
}

func TestWebSocketChat(t *testing.T) {
	t.Parallel()

	conn, ctx := dialChat(t, newTestService(&fakeBackend{}))

	hello := readFrame(t, ctx, conn)
	if hello.Type != frameSession || hello.SessionID == "" {
		t.Fatalf("expected session frame first, got %+v", hello)
	}

	if err := wsjson.Write(ctx, conn, wsInbound{Type: frameMessage, Content: "busco un televisor"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	resp := readFrame(t, ctx, conn)
	if resp.Type != frameResponse || resp.Sequence != 1 || resp.Message == nil || resp.Message.Text == "" {
		t.Fatalf("unexpected response frame: %+v", resp)
	}
	if resp.SessionID != hello.SessionID {
		t.Errorf("session changed without reset: %q vs %q", resp.SessionID, hello.SessionID)
	}

	if err := wsjson.Write(ctx, conn, wsInbound{Type: frameReset}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	reset := readFrame(t, ctx, conn)
	if reset.Type != frameSession || reset.SessionID == hello.SessionID {
		t.Errorf("expected new session after reset, got %+v", reset)
	}
}

func TestWebSocketErrors(t *testing.T) {
	t.Parallel()

	conn, ctx := dialChat(t, newTestService(&fakeBackend{}))
	_ = readFrame(t, ctx, conn)

	for _, in := range []wsInbound{{Type: frameMessage, Content: "  "}, {Type: "bogus"}} {
		if err := wsjson.Write(ctx, conn, in); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if out := readFrame(t, ctx, conn); out.Type != frameError || out.Error == "" {
			t.Errorf("expected error frame for %+v, got %+v", in, out)
		}
	}

	if err := wsjson.Write(ctx, conn, wsInbound{Type: framePing}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if out := readFrame(t, ctx, conn); out.Type != framePong {
		t.Errorf("expected pong, got %+v", out)
	}
}

func TestOriginPatterns(t *testing.T) {
	t.Parallel()

	got := originPatterns([]string{"*", "https://shop.example.com", "::bad"})
	if len(got) != 2 || got[0] != "*" || got[1] != "shop.example.com" {
		t.Errorf("unexpected patterns: %v", got)
	}
}
