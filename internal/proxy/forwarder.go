// Package proxy forwards inbound requests, byte for byte, to the upstream
// Sentry ingest host.
package proxy

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ProxyHeader identifies relayed requests to the upstream.
const ProxyHeader = "X-Relay-Proxy"

// ProxyHeaderValue is the value set on ProxyHeader.
const ProxyHeaderValue = "sentry-relay"

// Request captures everything needed to replay an inbound request upstream,
// decoupled from the inbound *http.Request so it can outlive the handler.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
	ClientIP string
}

// FromHTTP snapshots an inbound request. body may be nil when the inbound
// body has not been read; in that case the original stream is forwarded
// directly (only valid for synchronous passthrough).
func FromHTTP(r *http.Request, body []byte, clientIP string) *Request {
	return &Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     body,
		ClientIP: clientIP,
	}
}

// Forwarder sends requests to a fixed upstream target. It is safe for
// concurrent use.
type Forwarder struct {
	target     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewForwarder builds a forwarder for the given target, which may be a bare
// host ("sentry.example.com") or a full base URL. Bare hosts get https.
func NewForwarder(target string, timeout time.Duration, logger *slog.Logger) *Forwarder {
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		target:     strings.TrimSuffix(target, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Do sends the request upstream with the original method, path, query and
// headers. The forwarded-IP header is overridden with the resolved client IP
// and a proxy-identifying header is added. The body is attached for POST
// only. Callers own the returned response body.
func (f *Forwarder) Do(ctx context.Context, req *Request) (*http.Response, error) {
	target := f.target + req.Path
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}

	var body io.Reader
	if req.Method == http.MethodPost && req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, value := range values {
			upstreamReq.Header.Add(key, value)
		}
	}
	if req.ClientIP != "" {
		upstreamReq.Header.Set("X-Forwarded-For", req.ClientIP)
	}
	upstreamReq.Header.Set(ProxyHeader, ProxyHeaderValue)

	f.logger.Info("upstream request",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.String("query", req.RawQuery),
	)

	return f.httpClient.Do(upstreamReq)
}

// Passthrough forwards the inbound request and copies the upstream response
// back verbatim: status, headers and body. body may be nil when the inbound
// body has not been read yet (non-POST requests).
func (f *Forwarder) Passthrough(w http.ResponseWriter, r *http.Request, body []byte, clientIP string) {
	resp, err := f.Do(r.Context(), FromHTTP(r, body, clientIP))
	if err != nil {
		f.logger.Error("upstream request failed", "error", err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		f.logger.Warn("copy upstream response", "error", err)
	}
}

// Forward sends the request upstream and discards the response. Used for
// the fire-and-forget lane after the client has already been answered.
func (f *Forwarder) Forward(ctx context.Context, req *Request) error {
	resp, err := f.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
