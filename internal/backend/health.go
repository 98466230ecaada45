package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ConnectionStatus is the tri-state backend reachability shown to users.
type ConnectionStatus string

const (
	StatusOnline  ConnectionStatus = "online"
	StatusSlow    ConnectionStatus = "slow"
	StatusOffline ConnectionStatus = "offline"
)

// HealthResult is the outcome of one GET /health probe.
type HealthResult struct {
	Status    ConnectionStatus `json:"status"`
	Latency   time.Duration    `json:"-"`
	LatencyMs int64            `json:"latencyMs"`
	CheckedAt time.Time        `json:"checkedAt"`
	Error     string           `json:"error,omitempty"`
}

// CheckHealth probes the backend. Non-2xx answers and transport failures are
// offline; a 2xx slower than the slow threshold is slow.
func (c *Client) CheckHealth(ctx context.Context) HealthResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res := HealthResult{Status: StatusOffline, CheckedAt: start.UTC()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	resp, err := c.http.Do(req)
	res.Latency = time.Since(start)
	res.LatencyMs = res.Latency.Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Error = fmt.Sprintf("health returned status %d", resp.StatusCode)
		return res
	}

	res.Status = StatusOnline
	if res.Latency > c.cfg.SlowThreshold {
		res.Status = StatusSlow
	}
	return res
}
