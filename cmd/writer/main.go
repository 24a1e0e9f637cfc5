package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/texts-hq/sentry-relay/internal/clickhouse"
	"github.com/texts-hq/sentry-relay/internal/config"
	"github.com/texts-hq/sentry-relay/internal/logging"
	"github.com/texts-hq/sentry-relay/internal/queue"
	"github.com/texts-hq/sentry-relay/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("writer"))
	logging.SetDefault(logger)

	slog.Info("Starting batch writer",
		slog.String("nats_url", cfg.NATS.URL),
		slog.Int("batch_size", cfg.Writer.BatchSize),
	)

	// Event store client; absence of credentials is a valid degraded state.
	var sink writer.Sink
	chClient, err := clickhouse.NewClient(clickhouse.Config{
		Host:     cfg.ClickHouse.Host,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
		Database: cfg.ClickHouse.Database,
		Table:    cfg.ClickHouse.Table,
		Timeout:  cfg.ClickHouse.Timeout,
	})
	switch {
	case err == nil:
		sink = chClient
		log.Printf("ClickHouse sink configured (host: %s, table: %s)", cfg.ClickHouse.Host, cfg.ClickHouse.Table)
	case errors.Is(err, clickhouse.ErrNotConfigured):
		log.Println("WARNING: ClickHouse credentials not configured, batches will be dropped")
	default:
		log.Fatalf("Failed to create ClickHouse client: %v", err)
	}

	queueClient, err := queue.Connect(queue.Config{
		URL:           cfg.NATS.URL,
		Name:          "sentry-relay-writer",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer queueClient.Close()

	setupCtx, setupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := queueClient.EnsureStream(setupCtx); err != nil {
		setupCancel()
		log.Fatalf("Failed to ensure rows stream: %v", err)
	}
	consumer, err := queueClient.EnsureConsumer(setupCtx)
	setupCancel()
	if err != nil {
		log.Fatalf("Failed to ensure consumer: %v", err)
	}

	w := writer.New(sink, cfg.Writer.BatchSize, cfg.Writer.MaxWait, logger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down batch writer...")
		cancel()
	}()

	if err := w.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Batch writer stopped: %v", err)
	}

	log.Println("Batch writer stopped")
}
