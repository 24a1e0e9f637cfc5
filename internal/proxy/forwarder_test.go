package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	query  string
	header http.Header
	body   string
}

func captureServer(t *testing.T, status int, respBody string) (*httptest.Server, *captured) {
	t.Helper()
	var cap captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cap = captured{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			header: r.Header.Clone(),
			body:   string(body),
		}
		w.Header().Set("X-Upstream-Marker", "present")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &cap
}

func TestForwarder_Do(t *testing.T) {
	srv, cap := captureServer(t, http.StatusOK, "ok")
	f := NewForwarder(srv.URL, 5*time.Second, nil)

	req := &Request{
		Method:   http.MethodPost,
		Path:     "/api/7/envelope/",
		RawQuery: "sentry_key=abc",
		Header:   http.Header{"Content-Type": {"application/x-sentry-envelope"}},
		Body:     []byte("line1\nline2"),
		ClientIP: "203.0.113.4",
	}
	resp, err := f.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.MethodPost, cap.method)
	assert.Equal(t, "/api/7/envelope/", cap.path)
	assert.Equal(t, "sentry_key=abc", cap.query)
	assert.Equal(t, "line1\nline2", cap.body)
	assert.Equal(t, "application/x-sentry-envelope", cap.header.Get("Content-Type"))
	assert.Equal(t, "203.0.113.4", cap.header.Get("X-Forwarded-For"))
	assert.Equal(t, ProxyHeaderValue, cap.header.Get(ProxyHeader))
}

func TestForwarder_DoSkipsBodyForNonPost(t *testing.T) {
	srv, cap := captureServer(t, http.StatusOK, "")
	f := NewForwarder(srv.URL, 5*time.Second, nil)

	req := &Request{
		Method: http.MethodGet,
		Path:   "/api/7/envelope/",
		Header: http.Header{},
		Body:   []byte("should not be sent"),
	}
	resp, err := f.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, cap.body)
}

func TestForwarder_Passthrough(t *testing.T) {
	srv, _ := captureServer(t, http.StatusCreated, "upstream body")
	f := NewForwarder(srv.URL, 5*time.Second, nil)

	inbound := httptest.NewRequest(http.MethodPost, "/api/7/store/", strings.NewReader("payload"))
	rr := httptest.NewRecorder()
	f.Passthrough(rr, inbound, []byte("payload"), "198.51.100.9")

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "upstream body", rr.Body.String())
	assert.Equal(t, "present", rr.Header().Get("X-Upstream-Marker"))
}

func TestForwarder_PassthroughUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	f := NewForwarder(srv.URL, time.Second, nil)

	inbound := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rr := httptest.NewRecorder()
	f.Passthrough(rr, inbound, nil, "")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "Service unavailable")
}

func TestForwarder_Forward(t *testing.T) {
	srv, cap := captureServer(t, http.StatusOK, "discarded")
	f := NewForwarder(srv.URL, 5*time.Second, nil)

	err := f.Forward(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/1/envelope/",
		Header: http.Header{},
		Body:   []byte("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/1/envelope/", cap.path)
}

func TestNewForwarder_BareHostGetsHTTPS(t *testing.T) {
	f := NewForwarder("sentry.example.com", time.Second, nil)
	assert.Equal(t, "https://sentry.example.com", f.target)

	f = NewForwarder("http://localhost:9000/", time.Second, nil)
	assert.Equal(t, "http://localhost:9000", f.target, "trailing slash trimmed, scheme kept")
}
