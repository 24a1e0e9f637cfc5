package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/texts-hq/sentry-relay/internal/handlers"
	"github.com/texts-hq/sentry-relay/internal/middleware"
)

// NewRouter constructs the relay's ServeMux. Everything not claimed by the
// operational endpoints falls through to the dispatcher, which decides per
// request whether to parse, forward, or reject.
func NewRouter(h *handlers.EnvelopeHandler) http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Catch-all dispatcher
	mux.HandleFunc("/", h.Handle)

	return middleware.RequestID(mux)
}
