package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/aireview/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// opsStats is the subset of GET /stats the runner reads.
type opsStats struct {
	Started   bool  `json:"started"`
	Processed int64 `json:"processed"`
}

type opsClient struct {
	baseURL string
	client  *http.Client
}

func newOpsClient(baseURL string, timeout time.Duration) *opsClient {
	return &opsClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *opsClient) stats(ctx context.Context) (opsStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", nil)
	if err != nil {
		return opsStats{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return opsStats{}, fmt.Errorf("failed to reach ops server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return opsStats{}, fmt.Errorf("stats returned status %d", resp.StatusCode)
	}
	var s opsStats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return opsStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return s, nil
}

// waitForProcessed polls /stats until the service has settled want more
// deliveries than baseline, or wait elapses.
func waitForProcessed(ctx context.Context, c *opsClient, baseline int64, want int, wait time.Duration) (int64, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	last := baseline
	for {
		s, err := c.stats(ctx)
		if err != nil {
			logger.Get().Warn(ctx, "stats poll failed", logger.Error(err))
		} else {
			last = s.Processed
			if last-baseline >= int64(want) {
				return last, nil
			}
		}
		if time.Now().After(deadline) {
			return last, fmt.Errorf("only %d of %d events settled within %s", last-baseline, want, wait)
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
