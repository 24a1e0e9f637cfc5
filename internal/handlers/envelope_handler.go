package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/texts-hq/sentry-relay/internal/envelope"
	"github.com/texts-hq/sentry-relay/internal/logging"
	"github.com/texts-hq/sentry-relay/internal/metrics"
	"github.com/texts-hq/sentry-relay/internal/normalizer"
	"github.com/texts-hq/sentry-relay/internal/proxy"
	"github.com/texts-hq/sentry-relay/internal/ratelimit"
	"github.com/texts-hq/sentry-relay/internal/tasks"
)

// envelopeSuffix marks paths that carry a parseable envelope body.
const envelopeSuffix = "/envelope/"

// Enqueuer hands a normalized row to the durable queue.
type Enqueuer interface {
	EnqueueRow(ctx context.Context, row normalizer.Row) error
}

// ConnStatus is implemented by queue clients that can report whether their
// broker connection is up. Readiness consults it when available.
type ConnStatus interface {
	IsConnected() bool
}

// Upstream forwards requests to the configured ingest host, either
// synchronously with the response copied back (Passthrough) or
// fire-and-forget (Forward).
type Upstream interface {
	Passthrough(w http.ResponseWriter, r *http.Request, body []byte, clientIP string)
	Forward(ctx context.Context, req *proxy.Request) error
}

// EnvelopeHandler is the per-request dispatcher: it classifies each inbound
// request, schedules background normalization+enqueue and background
// forwarding for envelope POSTs, and passes everything else through to the
// upstream untouched.
type EnvelopeHandler struct {
	queue            Enqueuer
	upstream         Upstream
	limiter          ratelimit.RateLimiter
	pool             *tasks.Pool
	trustedIPHeaders []string
	logger           *logging.Logger
}

// NewEnvelopeHandler wires the dispatcher. trustedIPHeaders are consulted in
// order to resolve the caller IP; nil falls back to the conventional pair.
func NewEnvelopeHandler(queue Enqueuer, upstream Upstream, limiter ratelimit.RateLimiter, pool *tasks.Pool, trustedIPHeaders []string, logger *logging.Logger) *EnvelopeHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if len(trustedIPHeaders) == 0 {
		trustedIPHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For"}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EnvelopeHandler{
		queue:            queue,
		upstream:         upstream,
		limiter:          limiter,
		pool:             pool,
		trustedIPHeaders: trustedIPHeaders,
		logger:           logger,
	}
}

// Handle dispatches one inbound request. Any panic in the synchronous path
// is converted to a generic 500; the detail is logged, never leaked.
func (h *EnvelopeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithContext(r.Context())

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("unhandled error in dispatcher",
				slog.Any("panic", rec),
				slog.String("path", r.URL.Path),
			)
			writeInternalServerError(w)
		}
	}()

	clientIP := h.clientIP(r)

	// Non-POST traffic is opaque to the relay: forward it without reading
	// the body.
	if r.Method != http.MethodPost {
		metrics.RequestsTotal.WithLabelValues("passthrough", "forwarded").Inc()
		h.upstream.Passthrough(w, r, nil, clientIP)
		return
	}

	// Form-encoded POSTs are session pings or error-page embed submissions.
	// Capture a best-effort record in the background, then forward.
	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.Contains(contentType, "x-www-form-urlencoded") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Error("read form body", "error", err)
			writeInternalServerError(w)
			return
		}
		h.scheduleErrorPageRecord(string(body), clientIP)
		metrics.RequestsTotal.WithLabelValues("errorpage", "forwarded").Inc()
		h.upstream.Passthrough(w, r, body, clientIP)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("read request body", "error", err)
		writeInternalServerError(w)
		return
	}

	if len(body) == 0 {
		metrics.RequestsTotal.WithLabelValues("envelope", "rejected").Inc()
		writeUnprocessableEntity(w)
		return
	}

	// A non-envelope path with a body we already consumed: forward the
	// buffered bytes instead of re-reading the stream.
	if !strings.HasSuffix(r.URL.Path, envelopeSuffix) {
		metrics.RequestsTotal.WithLabelValues("passthrough", "forwarded").Inc()
		h.upstream.Passthrough(w, r, body, clientIP)
		return
	}

	projectID := envelope.ExtractProjectID(r.URL.Path)
	if projectID == "" {
		metrics.RequestsTotal.WithLabelValues("envelope", "rejected").Inc()
		writeUnprocessableEntity(w)
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), projectID)
	if err != nil {
		// Limiter trouble must not drop traffic.
		logger.Warn("rate limiter check failed", "error", err, slog.String("project_id", projectID))
		allowed = true
	}
	if !allowed {
		metrics.RequestsTotal.WithLabelValues("envelope", "rate_limited").Inc()
		writeTooManyRequests(w)
		return
	}

	metrics.RequestBytesTotal.Add(float64(len(body)))

	lines := envelope.SplitLines(string(body))
	head := envelope.ParseHeader(lines[0])

	if defLine, payloadLine, ok := envelope.FindEventItem(lines); ok {
		h.pool.Go("enqueue-event", func(ctx context.Context) error {
			row, ok := normalizer.Normalize(defLine, payloadLine, clientIP)
			if !ok {
				return nil
			}
			if err := h.queue.EnqueueRow(ctx, row); err != nil {
				metrics.EnqueueErrors.Inc()
				return fmt.Errorf("enqueue row for project %s: %w", projectID, err)
			}
			return nil
		})
	}

	fwd := proxy.FromHTTP(r, body, clientIP)
	h.pool.Go("forward-envelope", func(ctx context.Context) error {
		if err := h.upstream.Forward(ctx, fwd); err != nil {
			metrics.ForwardErrors.Inc()
			return fmt.Errorf("forward envelope: %w", err)
		}
		return nil
	})

	// Respond immediately; neither background lane is awaited.
	metrics.RequestsTotal.WithLabelValues("envelope", "accepted").Inc()
	var id any
	if head.EventID != "" {
		id = head.EventID
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

// Health reports liveness.
func (h *EnvelopeHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports readiness. When the queue client can report its connection
// state, a dropped broker connection makes the relay not ready: accepted
// envelopes could not be handed off durably.
func (h *EnvelopeHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if status, ok := h.queue.(ConnStatus); ok && !status.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "queue disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// scheduleErrorPageRecord extracts a minimal row from a form-encoded body in
// the background. Parsing failures are absorbed; this path never blocks or
// fails the forward.
func (h *EnvelopeHandler) scheduleErrorPageRecord(body, clientIP string) {
	h.pool.Go("error-page-record", func(ctx context.Context) error {
		form, err := url.ParseQuery(body)
		if err != nil || form.Get("eventId") == "" {
			return nil
		}
		row := normalizer.FromErrorPage(form, clientIP)
		if err := h.queue.EnqueueRow(ctx, row); err != nil {
			metrics.EnqueueErrors.Inc()
			return fmt.Errorf("enqueue error-page row: %w", err)
		}
		return nil
	})
}

// clientIP resolves the caller IP from the first populated trusted header,
// taking the first entry of a comma-separated list.
func (h *EnvelopeHandler) clientIP(r *http.Request) string {
	for _, name := range h.trustedIPHeaders {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		first := strings.TrimSpace(strings.Split(value, ",")[0])
		if first != "" {
			return first
		}
	}
	return ""
}
