package seeder

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texts-hq/sentry-relay/internal/envelope"
	"github.com/texts-hq/sentry-relay/internal/normalizer"
)

func TestEnvelope_ParsesAsValidEnvelope(t *testing.T) {
	lines := envelope.SplitLines(string(Envelope(false)))
	require.Len(t, lines, 3)

	head := envelope.ParseHeader(lines[0])
	assert.NotEmpty(t, head.EventID)
	assert.Equal(t, "sentry.javascript.electron", head.SDKName)

	defLine, payloadLine, ok := envelope.FindEventItem(lines)
	require.True(t, ok, "generated envelope must carry an event item")

	row, ok := normalizer.Normalize(defLine, payloadLine, "")
	require.True(t, ok)
	assert.Equal(t, normalizer.EventTypeEvent, row.EventType)
	assert.NotEmpty(t, row.DeviceID, "fake tags always carry a device_id")
}

func TestEnvelope_WithException(t *testing.T) {
	lines := envelope.SplitLines(string(Envelope(true)))
	defLine, payloadLine, ok := envelope.FindEventItem(lines)
	require.True(t, ok)

	row, ok := normalizer.Normalize(defLine, payloadLine, "")
	require.True(t, ok)
	assert.Equal(t, normalizer.EventTypeException, row.EventType)
	assert.Equal(t, "error", row.LogLevel)
}

func TestRun(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.True(t, strings.HasSuffix(r.URL.Path, "/envelope/"))
		assert.Equal(t, "application/x-sentry-envelope", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NotEmpty(t, body)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer srv.Close()

	res, err := Run(Options{TargetURL: srv.URL, ProjectID: "42", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Sent)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 5, hits)
}

func TestRun_CountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	res, err := Run(Options{TargetURL: srv.URL, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent)
	assert.Equal(t, 3, res.Failed)
}

func TestRun_RequiresTarget(t *testing.T) {
	_, err := Run(Options{Count: 1})
	require.Error(t, err)
}
