package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/texts-hq/sentry-relay/internal/config"
	"github.com/texts-hq/sentry-relay/internal/handlers"
	"github.com/texts-hq/sentry-relay/internal/logging"
	"github.com/texts-hq/sentry-relay/internal/proxy"
	"github.com/texts-hq/sentry-relay/internal/queue"
	"github.com/texts-hq/sentry-relay/internal/ratelimit"
	"github.com/texts-hq/sentry-relay/internal/server"
	"github.com/texts-hq/sentry-relay/internal/tasks"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("relay"))
	logging.SetDefault(logger)

	slog.Info("Starting relay service",
		slog.Int("port", cfg.Server.Port),
		slog.String("upstream", cfg.Upstream.IngestHost),
		slog.String("log_level", cfg.Logging.Level),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
			false,
		)
		if err != nil {
			log.Printf("WARNING: Failed to initialize Redis rate limiter: %v", err)
			log.Println("Continuing without rate limiting")
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			log.Printf("Rate limiting enabled: %d requests per %s", cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
		log.Println("Rate limiting disabled")
	}
	defer rateLimiter.Close()

	// Connect to NATS and make sure the rows stream exists
	queueClient, err := queue.Connect(queue.Config{
		URL:           cfg.NATS.URL,
		Name:          "sentry-relay",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := queueClient.EnsureStream(ctx); err != nil {
		log.Fatalf("Failed to ensure rows stream: %v", err)
	}
	cancel()
	log.Printf("Queue ready (stream: %s, subject: %s)", queue.StreamName, queue.Subject)

	// Upstream forwarder and background task pool
	forwarder := proxy.NewForwarder(cfg.Upstream.IngestHost, cfg.Upstream.Timeout, logger.Logger)
	pool := tasks.NewPool(cfg.Ingestion.MaxInFlightTasks, logger.Logger)

	handler := handlers.NewEnvelopeHandler(
		queueClient,
		forwarder,
		rateLimiter,
		pool,
		cfg.Upstream.TrustedIPHeaders,
		logger,
	)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Relay service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let detached enqueue/forward tasks finish before dropping the queue
	// connection.
	if err := pool.Drain(cfg.Ingestion.DrainTimeout); err != nil {
		log.Printf("WARNING: %v", err)
	}
	if err := queueClient.Drain(); err != nil {
		log.Printf("WARNING: queue drain failed: %v", err)
	}

	log.Println("Server stopped")
}
