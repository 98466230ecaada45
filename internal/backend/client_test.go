package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/advisor-gateway/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSleep replaces the backoff wait and records requested delays.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, url string, mutate func(*Config)) (*Client, *recordingSleep) {
	t.Helper()
	cfg := DefaultConfig(url)
	cfg.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	rec := &recordingSleep{}
	c.sleep = rec.sleep
	return c, rec
}

func TestSendFlatContract(t *testing.T) {
	t.Parallel()

	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"Te recomiendo este","confidence":"HIGH","suggestions":["Ver más"],"products":[{"id":"p1","title":"TV 55","price":1899900}]}`)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL+"/", nil)
	resp := c.Send(context.Background(), Request{Message: "hola", SessionID: "s1"})

	if resp.Failed() {
		t.Fatalf("unexpected failure: %+v", resp.Error)
	}
	if got.Message != "hola" || got.SessionID != "s1" || got.Timestamp.IsZero() {
		t.Errorf("unexpected request body %+v", got)
	}
	if resp.Message != "Te recomiendo este" || resp.Confidence != domain.ConfidenceHigh {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Products) != 1 || resp.Products[0].FormattedPrice != "$1.899.900" {
		t.Errorf("products not normalized: %+v", resp.Products)
	}
	if resp.Attempts != 1 || len(rec.delays) != 0 {
		t.Errorf("expected a single attempt, got %d attempts and delays %v", resp.Attempts, rec.delays)
	}
}

func TestSendNestedContract(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":{"response":"Claro","suggestions":["Sí"]},"mode":"agent","sessionId":"s1"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Contract = ContractNested })
	resp := c.Send(context.Background(), Request{Message: "hola", SessionID: "s1"})
	if resp.Failed() {
		t.Fatalf("unexpected failure: %+v", resp.Error)
	}
	if resp.Message != "Claro" || resp.Mode != "agent" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestSendWrongContractIsValidationError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"response":{"response":"Claro"},"mode":"agent"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	resp := c.Send(context.Background(), Request{Message: "hola"})
	if !resp.Failed() || resp.Error.Type != ErrorValidation {
		t.Fatalf("expected validation failure, got %+v", resp)
	}
	if calls.Load() != 1 {
		t.Errorf("validation failures must not retry, got %d calls", calls.Load())
	}
}

func TestSendRetriesNetworkFailuresThenSucceeds(t *testing.T) {
	t.Parallel()

	const maxRetries = 3
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= maxRetries {
			// Drop the connection to produce a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("hijacking not supported")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		_, _ = io.WriteString(w, `{"message":"listo"}`)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxRetries = maxRetries })
	resp := c.Send(context.Background(), Request{Message: "hola"})

	if resp.Failed() {
		t.Fatalf("expected success after retries, got %+v", resp.Error)
	}
	if resp.Attempts != maxRetries+1 {
		t.Errorf("expected %d attempts, got %d", maxRetries+1, resp.Attempts)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, rec.delays)
	}
	var total time.Duration
	for i, d := range rec.delays {
		if d != want[i] {
			t.Errorf("delay %d = %v, want %v", i+1, d, want[i])
		}
		total += d
	}
	if total < 14*time.Second {
		t.Errorf("total backoff %v below 2+4+8 seconds", total)
	}
}

func TestSendStatusHandling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status       int
		wantType     ErrorType
		wantAttempts int32
	}{
		{http.StatusBadRequest, ErrorValidation, 1},
		{http.StatusNotFound, ErrorServer, 1},
		{http.StatusForbidden, ErrorServer, 1},
		{http.StatusTooManyRequests, ErrorRateLimit, 3},
		{http.StatusBadGateway, ErrorServer, 3},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxRetries = 2 })
			resp := c.Send(context.Background(), Request{Message: "hola"})

			if !resp.Failed() {
				t.Fatal("expected failure")
			}
			if resp.Error.Type != tt.wantType || resp.Error.StatusCode != tt.status {
				t.Errorf("got %s/%d, want %s/%d", resp.Error.Type, resp.Error.StatusCode, tt.wantType, tt.status)
			}
			if calls.Load() != tt.wantAttempts {
				t.Errorf("expected %d attempts, got %d", tt.wantAttempts, calls.Load())
			}
			if resp.Message != userMessages[tt.wantType] || len(resp.Suggestions) == 0 {
				t.Errorf("expected fallback message and suggestions, got %+v", resp)
			}
		})
	}
}

func TestSendRetryBudgetIsPerCall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxRetries = 1 })
	c.Send(context.Background(), Request{Message: "uno"})
	c.Send(context.Background(), Request{Message: "dos"})

	if calls.Load() != 4 {
		t.Errorf("expected two attempts per call, got %d total", calls.Load())
	}
}

func TestSendAttemptTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, rec := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
		cfg.MaxRetries = 1
	})
	resp := c.Send(context.Background(), Request{Message: "hola"})

	if !resp.Failed() || resp.Error.Type != ErrorNetwork || !resp.Error.Retryable {
		t.Fatalf("expected retryable network failure, got %+v", resp.Error)
	}
	if resp.Attempts != 2 || len(rec.delays) != 1 {
		t.Errorf("expected 2 attempts with one backoff, got %d attempts, delays %v", resp.Attempts, rec.delays)
	}
}

func TestSendStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	resp := c.Send(ctx, Request{Message: "hola"})
	if !resp.Failed() || resp.Attempts != 1 {
		t.Fatalf("expected to stop after first attempt, got %+v", resp)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"", "ftp://example.com", "http://", "::bad"} {
		if _, err := NewClient(DefaultConfig(u), quietLogger()); err == nil {
			t.Errorf("expected error for %q", u)
		}
	}
}
