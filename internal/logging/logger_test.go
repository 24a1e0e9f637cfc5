package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/texts-hq/sentry-relay/internal/middleware"
)

func bufferedLogger(buf *bytes.Buffer) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(buf, nil))}
}

func TestWithContext_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := bufferedLogger(&buf)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-abc123")
	l.WithContext(ctx).Info("handling request")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-abc123"`) {
		t.Errorf("log line missing request_id: %s", out)
	}
}

func TestWithContext_NoRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := bufferedLogger(&buf)

	l.WithContext(context.Background()).Info("handling request")

	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("log line has spurious request_id: %s", buf.String())
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil || Default().Logger == nil {
		t.Fatal("Default() returned a nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
