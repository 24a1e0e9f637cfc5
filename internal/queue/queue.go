// Package queue provides the durable handoff between the relay and the
// batch writer, backed by NATS JetStream.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/texts-hq/sentry-relay/internal/metrics"
	"github.com/texts-hq/sentry-relay/internal/normalizer"
)

const (
	// StreamName is the JetStream stream holding normalized rows.
	StreamName = "SENTRY_EVENTS"

	// Subject is the subject rows are published on.
	Subject = "sentry.events.rows"

	// ConsumerName is the durable consumer used by the batch writer.
	ConsumerName = "batch-writer"
)

// Config holds NATS connection configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// Timeout is the connection timeout.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "sentry-relay",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Client wraps a NATS connection with a JetStream context. It is safe for
// concurrent use by multiple in-flight requests.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect establishes a NATS connection and JetStream context.
func Connect(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{conn: conn, js: js}, nil
}

// EnsureStream creates or updates the rows stream. WorkQueue retention
// deletes each message once its consumer acknowledges it; file storage makes
// the handoff durable across broker restarts.
func (c *Client) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{Subject},
		MaxAge:    24 * time.Hour,
		MaxBytes:  1024 * 1024 * 1024, // 1GB
		MaxMsgs:   1000000,
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", StreamName, err)
	}
	return stream, nil
}

// EnsureConsumer creates or updates the batch writer's durable pull
// consumer. Unacknowledged batches are redelivered after AckWait.
func (c *Client) EnsureConsumer(ctx context.Context) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, StreamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          ConsumerName,
		Durable:       ConsumerName,
		FilterSubject: Subject,
		AckWait:       30 * time.Second,
		MaxDeliver:    -1,
		MaxAckPending: 5000,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", ConsumerName, err)
	}
	return consumer, nil
}

// EnqueueRow publishes a normalized row to the stream as JSON. The publish
// waits for the broker's ack so a durable handoff is guaranteed before the
// call returns.
func (c *Client) EnqueueRow(ctx context.Context, row normalizer.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}

	msg := &nats.Msg{
		Subject: Subject,
		Data:    data,
		Header:  nats.Header{"Content-Type": []string{"application/json"}},
	}

	start := time.Now()
	if _, err := c.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish row: %w", err)
	}
	metrics.EnqueueDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Drain gracefully closes, allowing in-flight messages to complete.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// Close releases the connection.
func (c *Client) Close() {
	c.conn.Close()
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}
