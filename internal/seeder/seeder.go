// Package seeder generates realistic Sentry envelope traffic for load and
// integration testing against a running relay.
package seeder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Options controls a seeding run.
type Options struct {
	// TargetURL is the relay base URL, e.g. "http://localhost:8787".
	TargetURL string

	// ProjectID goes into the envelope path.
	ProjectID string

	// Count is the number of envelopes to send.
	Count int

	// Interval is the pause between envelopes.
	Interval time.Duration

	// ExceptionRatio is the fraction of envelopes carrying exception data,
	// in [0, 1].
	ExceptionRatio float64
}

// Result summarizes a seeding run.
type Result struct {
	Sent   int
	Failed int
}

var levels = []string{"error", "warning", "info", "debug"}

var platforms = []string{"macOS", "windows", "linux", "ios", "android"}

var exceptionTypes = []string{"TypeError", "RangeError", "ReferenceError", "NetworkError", "AbortError"}

// Run sends Count envelopes to the target relay.
func Run(opts Options) (Result, error) {
	if opts.TargetURL == "" {
		return Result{}, fmt.Errorf("target URL is required")
	}
	if opts.ProjectID == "" {
		opts.ProjectID = "1"
	}

	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := fmt.Sprintf("%s/api/%s/envelope/", strings.TrimSuffix(opts.TargetURL, "/"), opts.ProjectID)

	var res Result
	for i := 0; i < opts.Count; i++ {
		body := Envelope(gofakeit.Float64Range(0, 1) < opts.ExceptionRatio)

		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return res, err
		}
		req.Header.Set("Content-Type", "application/x-sentry-envelope")

		resp, err := client.Do(req)
		if err != nil {
			res.Failed++
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				res.Sent++
			} else {
				res.Failed++
			}
		}

		if opts.Interval > 0 && i < opts.Count-1 {
			time.Sleep(opts.Interval)
		}
	}
	return res, nil
}

// Envelope builds one fake envelope body: header line, event item
// definition, and event payload.
func Envelope(withException bool) []byte {
	eventID := strings.ReplaceAll(uuid.New().String(), "-", "")

	header := map[string]any{
		"event_id": eventID,
		"sent_at":  time.Now().UTC().Format(time.RFC3339),
		"sdk": map[string]any{
			"name":    "sentry.javascript.electron",
			"version": gofakeit.AppVersion(),
		},
	}

	payload := map[string]any{
		"event_id":  eventID,
		"timestamp": float64(time.Now().Unix()),
		"message":   gofakeit.HackerPhrase(),
		"level":     gofakeit.RandomString(levels),
		"release":   gofakeit.AppVersion(),
		"platform":  "javascript",
		"tags": map[string]any{
			"device_id": uuid.New().String(),
			"session":   gofakeit.UUID(),
		},
		"extra": map[string]any{
			"platformName": gofakeit.RandomString(platforms),
			"threadCount":  gofakeit.Number(1, 64),
		},
	}

	if withException {
		payload["exception"] = map[string]any{
			"values": []any{
				map[string]any{
					"type":  gofakeit.RandomString(exceptionTypes),
					"value": gofakeit.Sentence(8),
					"stacktrace": map[string]any{
						"frames": []any{
							map[string]any{
								"function":     gofakeit.HackerVerb(),
								"context_line": gofakeit.Sentence(5),
							},
						},
					},
				},
			},
		}
	}

	lines := []string{
		mustLine(header),
		`{"type":"event"}`,
		mustLine(payload),
	}
	return []byte(strings.Join(lines, "\n"))
}

func mustLine(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
