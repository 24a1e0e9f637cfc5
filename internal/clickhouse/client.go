// Package clickhouse is a minimal client for ClickHouse's HTTP interface,
// covering the single operation the batch writer needs: a bulk
// JSONEachRow insert.
package clickhouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/texts-hq/sentry-relay/internal/metrics"
	"github.com/texts-hq/sentry-relay/internal/normalizer"
)

// ErrNotConfigured is returned by NewClient when credentials are absent.
// Running without an event store is a valid state: the caller degrades to a
// no-op writer instead of failing.
var ErrNotConfigured = errors.New("clickhouse credentials not configured")

// Config holds ClickHouse connection configuration.
type Config struct {
	// Host is the HTTP endpoint, e.g. "https://ch.example.com:8443".
	Host     string
	Username string
	Password string

	// Database is optional; when empty the server default is used.
	Database string

	// Table is the insert target.
	Table string

	// Timeout bounds a single insert request.
	Timeout time.Duration
}

// Configured reports whether enough credentials are present to build a
// client.
func (c Config) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// Client performs bulk inserts over the ClickHouse HTTP interface.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a client, or ErrNotConfigured when credentials are
// missing.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	if cfg.Table == "" {
		cfg.Table = "app_logs"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// InsertRows performs one bulk insert covering all rows, encoded as one JSON
// object per line. Timestamp parsing at the sink runs in best-effort mode so
// loosely formatted created_at values do not reject the whole batch. The
// client does not retry; the caller's queue redelivery policy governs
// reattempts.
func (c *Client) InsertRows(ctx context.Context, rows []normalizer.Row) error {
	if len(rows) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}

	q := url.Values{}
	q.Set("query", fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow", c.qualifiedTable()))
	q.Set("date_time_input_format", "best_effort")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/?"+q.Encode(), &body)
	if err != nil {
		return fmt.Errorf("build insert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("X-ClickHouse-User", c.cfg.Username)
	req.Header.Set("X-ClickHouse-Key", c.cfg.Password)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.InsertErrors.Inc()
		return fmt.Errorf("insert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.InsertErrors.Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("insert rejected: %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	metrics.InsertDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Ping verifies connectivity using the /ping endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: %s", resp.Status)
	}
	return nil
}

func (c *Client) qualifiedTable() string {
	if c.cfg.Database != "" {
		return c.cfg.Database + "." + c.cfg.Table
	}
	return c.cfg.Table
}
