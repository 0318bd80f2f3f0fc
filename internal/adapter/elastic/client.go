// Package elastic delivers bulk payloads to the Elasticsearch sink. Writes
// are keyed by document ID, so re-delivering an already-applied document is a
// plain overwrite; the pipeline relies on that for at-least-once delivery.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"cinesync/apps/etl/internal/retry"
)

type Client struct {
	baseURL    string
	bulkPath   string
	healthPath string
	headers    map[string]string
	client     *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient builds a sink client. chunkDelay paces consecutive uploads to
// respect the sink's throughput limits; zero disables pacing.
func NewClient(baseURL, bulkPath, healthPath string, headers map[string]string, chunkDelay time.Duration, logger *slog.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if chunkDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(chunkDelay), 1)
	}
	return &Client{
		baseURL:    baseURL,
		bulkPath:   bulkPath,
		healthPath: healthPath,
		headers:    headers,
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}
}

// IsAlive probes the sink's health endpoint. It never returns an error: any
// transport failure or non-success status reports false, with the cause
// logged. Used as a pre-flight gate, not a hard precondition.
func (c *Client) IsAlive(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "sink health probe failed", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "sink unreachable", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "sink not healthy", "status", resp.StatusCode)
		return false
	}
	return true
}

// Upload POSTs one NDJSON bulk payload. Transport failures and 5xx responses
// are marked transient for the retry policy; 4xx responses and item-level
// bulk errors indicate a malformed payload and are returned as-is.
func (c *Client) Upload(ctx context.Context, payload []byte) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("upload pacing: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.bulkPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("bulk request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Transient(fmt.Errorf("read bulk response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return retry.Transient(fmt.Errorf("bulk write failed: status %d: %s", resp.StatusCode, body))
	case resp.StatusCode >= 300:
		return fmt.Errorf("bulk write rejected: status %d: %s", resp.StatusCode, body)
	}

	// The bulk endpoint answers 200 even when individual items failed.
	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Error json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &result); err == nil && result.Errors {
		return fmt.Errorf("bulk write had item errors: %s", body)
	}
	return nil
}
