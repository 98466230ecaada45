// Package backend talks to the remote advisor service over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBody bounds how much of a backend reply is read.
const maxResponseBody = 4 << 20

// Config holds client configuration.
type Config struct {
	BaseURL       string
	Contract      Contract
	Timeout       time.Duration // per attempt
	MaxRetries    int
	BackoffBase   time.Duration // delay before retry k is BackoffBase * 2^k
	SlowThreshold time.Duration // health round-trips above this are "slow"
}

// DefaultConfig returns default client configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		Contract:      ContractFlat,
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		BackoffBase:   time.Second,
		SlowThreshold: 3 * time.Second,
	}
}

// Request is one user turn as sent to POST /api/chat.
type Request struct {
	Message      string    `json:"message"`
	SessionID    string    `json:"sessionId"`
	Timestamp    time.Time `json:"timestamp"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Metadata     any       `json:"metadata,omitempty"`
}

// Client sends chat turns with bounded exponential-backoff retries.
// A Client keeps no state between calls and is safe for concurrent use.
type Client struct {
	cfg    Config
	base   string
	http   *http.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for the backend at cfg.BaseURL.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must use http or https", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend url %q has no host", cfg.BaseURL)
	}

	def := DefaultConfig(cfg.BaseURL)
	if cfg.Contract == "" {
		cfg.Contract = def.Contract
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = def.SlowThreshold
	}

	return &Client{
		cfg:    cfg,
		base:   strings.TrimRight(u.String(), "/"),
		http:   &http.Client{},
		logger: logger,
		sleep:  sleepContext,
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Send posts a chat turn and never fails: when every permitted attempt has
// failed, the returned Response carries an ErrorContext and a fixed
// user-facing message with suggestions.
//
// Each call starts with a fresh retry budget.
func (c *Client) Send(ctx context.Context, req Request) *Response {
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return c.fallback(Classify(fmt.Errorf("encode request: %w", err)), 0, 0)
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		resp, err := c.attempt(ctx, body)
		if err == nil {
			resp.Attempts = attempt
			resp.ResponseTime = time.Since(start).Milliseconds()
			if attempt > 1 {
				c.logger.Info("backend call recovered", "session_id", req.SessionID, "attempts", attempt)
			}
			return resp
		}

		ec := Classify(err)
		retries := attempt - 1
		if !ec.Retryable || retries >= c.cfg.MaxRetries {
			c.logger.Error("backend call failed",
				"session_id", req.SessionID,
				"type", ec.Type,
				"status", ec.StatusCode,
				"attempts", attempt,
				"error", err,
			)
			return c.fallback(ec, attempt, time.Since(start))
		}

		delay := c.backoff(retries + 1)
		c.logger.Warn("backend call failed, retrying",
			"session_id", req.SessionID,
			"type", ec.Type,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return c.fallback(Classify(err), attempt, time.Since(start))
		}
	}
}

// backoff returns the delay before retry k (1-based).
func (c *Client) backoff(k int) time.Duration {
	return c.cfg.BackoffBase * time.Duration(1<<k)
}

func (c *Client) attempt(ctx context.Context, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	return decodeResponse(c.cfg.Contract, data)
}

func (c *Client) fallback(ec ErrorContext, attempts int, elapsed time.Duration) *Response {
	return &Response{
		Message:      ec.UserMessage,
		Suggestions:  SuggestionsFor(ec.Type),
		ResponseTime: elapsed.Milliseconds(),
		Attempts:     attempts,
		Error:        &ec,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
