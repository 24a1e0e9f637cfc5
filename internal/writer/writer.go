// Package writer drains the durable queue and performs bulk inserts against
// the event store, one insert per batch.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/texts-hq/sentry-relay/internal/metrics"
	"github.com/texts-hq/sentry-relay/internal/normalizer"
)

// Sink accepts one bulk insert covering a whole batch of rows.
type Sink interface {
	InsertRows(ctx context.Context, rows []normalizer.Row) error
}

// Message is the slice of a queue message the writer needs. jetstream.Msg
// satisfies it.
type Message interface {
	Data() []byte
	Ack() error
}

// Writer consumes batches of normalized rows. A batch moves
// received → inserted → acknowledged atomically: every message is acked only
// after the single bulk insert succeeds, and none are acked on failure, so
// the queue's redelivery policy governs reattempts. The writer has no retry
// loop of its own.
type Writer struct {
	sink      Sink // nil when the event store is not configured
	batchSize int
	maxWait   time.Duration
	logger    *slog.Logger
}

// New builds a writer. sink may be nil, in which case batches are dropped
// with a warning instead of inserted; running without storage configured is
// a supported degraded state.
func New(sink Sink, batchSize int, maxWait time.Duration, logger *slog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 500
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		sink:      sink,
		batchSize: batchSize,
		maxWait:   maxWait,
		logger:    logger,
	}
}

// ProcessBatch handles one delivered batch. Messages that fail to decode are
// counted and acked with the batch; they would never succeed on redelivery.
func (w *Writer) ProcessBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if w.sink == nil {
		w.logger.Warn("event store not configured, dropping batch",
			slog.Int("batch_size", len(msgs)),
		)
		w.ackAll(msgs)
		return nil
	}

	rows := make([]normalizer.Row, 0, len(msgs))
	for _, msg := range msgs {
		var row normalizer.Row
		if err := json.Unmarshal(msg.Data(), &row); err != nil {
			w.logger.Error("skipping undecodable queue message", "error", err)
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := w.sink.InsertRows(ctx, rows); err != nil {
			// No acks: the whole batch redelivers after AckWait.
			return fmt.Errorf("bulk insert of %d rows: %w", len(rows), err)
		}
	}

	metrics.BatchRows.Observe(float64(len(rows)))
	w.ackAll(msgs)
	w.logger.Info("batch inserted",
		slog.Int("rows", len(rows)),
		slog.Int("messages", len(msgs)),
	)
	return nil
}

// Run fetches and processes batches until ctx is cancelled. One batch is in
// flight at a time; the loop never overlaps with itself.
func (w *Writer) Run(ctx context.Context, consumer jetstream.Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := consumer.Fetch(w.batchSize, jetstream.FetchMaxWait(w.maxWait))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.logger.Error("fetch batch", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		msgs := make([]Message, 0, w.batchSize)
		for msg := range batch.Messages() {
			msgs = append(msgs, msg)
		}
		if err := batch.Error(); err != nil {
			w.logger.Warn("batch fetch completed with error", "error", err)
		}

		if err := w.ProcessBatch(ctx, msgs); err != nil {
			w.logger.Error("process batch", "error", err)
		}
	}
}

func (w *Writer) ackAll(msgs []Message) {
	for _, msg := range msgs {
		if err := msg.Ack(); err != nil {
			w.logger.Warn("ack message", "error", err)
		}
	}
}
