// Package normalizer maps a Sentry envelope event item onto the fixed row
// shape persisted to the event store.
package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/texts-hq/sentry-relay/internal/envelope"
)

// Event type discriminators stored in Row.EventType.
const (
	EventTypeEvent          = "sentry-event"
	EventTypeException      = "sentry-exception"
	EventTypeExceptionMulti = "sentry-exception-multi"
	EventTypeErrorPage      = "sentry-error-page"
)

// maxSummaryLen bounds the message-summary segment of LogMessage.
const maxSummaryLen = 300

// messageDelimiter joins the segments of LogMessage.
const messageDelimiter = " | "

// Row is the canonical record persisted to the event store. EventData and
// Metadata are pre-serialized JSON strings because the sink stores them in
// text columns. A Row is immutable once constructed: built once here,
// queued once, consumed by the batch writer.
type Row struct {
	CreatedAt  time.Time `json:"created_at"`
	LogLevel   string    `json:"log_level"`
	LogMessage string    `json:"log_message"`
	EventType  string    `json:"event_type"`
	EventData  string    `json:"event_data"`
	Metadata   string    `json:"metadata"`
	DeviceID   string    `json:"device_id,omitempty"`
}

// Exception is one entry of a payload's exception.values, reduced to the
// fields the store keeps.
type Exception struct {
	Type       string  `json:"type,omitempty"`
	Value      string  `json:"value,omitempty"`
	Stacktrace []Frame `json:"stacktrace,omitempty"`
}

// Frame is a single stack frame. PreContext and PostContext are omitted
// entirely when empty; consumers of the stored JSON depend on key absence
// rather than empty arrays.
type Frame struct {
	Function    string   `json:"function,omitempty"`
	ContextLine string   `json:"context_line,omitempty"`
	PreContext  []string `json:"pre_context,omitempty"`
	PostContext []string `json:"post_context,omitempty"`
}

var knownLevels = map[string]bool{
	"critical": true,
	"error":    true,
	"warning":  true,
	"info":     true,
	"debug":    true,
	"trace":    true,
	"unknown":  true,
}

// Normalize converts one envelope item (definition line plus payload line)
// into a Row. The second return value is false when the item's type
// discriminator is not "event"; such items are proxied but never stored.
//
// Decoding is tolerant end to end: a malformed payload degrades to an empty
// object and still yields a well-formed Row built from whatever fragments
// exist. Normalize is a pure function of its inputs except for reading the
// clock when the payload carries no timestamp.
func Normalize(defLine, payloadLine, originIP string) (Row, bool) {
	def := envelope.ParseJSONObject(defLine)
	if envelope.StringField(def, "type") != "event" {
		return Row{}, false
	}
	payload := envelope.ParseJSONObject(payloadLine)

	createdAt := time.Now().UTC()
	if ts, ok := envelope.FloatField(payload, "timestamp"); ok {
		createdAt = time.UnixMilli(int64(ts * 1000)).UTC()
	}

	tags := envelope.MapField(payload, "tags")
	deviceID, _ := tags["device_id"].(string)
	delete(tags, "device_id")

	extra := envelope.MapField(payload, "extra")
	platformName, _ := extra["platformName"].(string)
	delete(extra, "platformName")

	release := envelope.StringField(payload, "release")
	exceptions := extractExceptions(payload)

	eventType := EventTypeEvent
	switch {
	case len(exceptions) == 1:
		eventType = EventTypeException
	case len(exceptions) > 1:
		eventType = EventTypeExceptionMulti
	}

	logLevel := "info"
	if len(exceptions) > 0 {
		logLevel = "error"
	} else if lvl := envelope.StringField(payload, "level"); lvl != "" {
		logLevel = lvl
		if !knownLevels[lvl] {
			logLevel = "unknown"
		}
	}

	// Extra fields merge flatly into event_data; the reserved keys live in
	// fixed underscore-prefixed slots.
	eventData := make(map[string]any, len(extra)+4)
	for k, v := range extra {
		eventData[k] = v
	}
	eventData["_request"] = envelope.MapField(payload, "request")
	eventData["_tags"] = tags
	if contexts := envelope.MapField(payload, "contexts"); len(contexts) > 0 {
		eventData["_contexts"] = contexts
	}
	if env := envelope.StringField(payload, "environment"); env != "" {
		eventData["_environment"] = env
	}
	if platform := envelope.StringField(payload, "platform"); platform != "" {
		eventData["_platform"] = platform
	}
	if len(exceptions) > 0 {
		eventData["_exceptions"] = exceptions
	}

	metadata := map[string]any{}
	if release != "" {
		metadata["appVersion"] = release
	}
	if eventID := envelope.StringField(payload, "event_id"); eventID != "" {
		metadata["sentryEventID"] = eventID
	}
	if platformName != "" {
		metadata["platformName"] = platformName
	}
	if originIP != "" {
		metadata["ip"] = originIP
	}

	return Row{
		CreatedAt:  createdAt,
		LogLevel:   logLevel,
		LogMessage: composeMessage(eventType, release, platformName, envelope.StringField(payload, "message"), exceptions),
		EventType:  eventType,
		EventData:  mustJSON(eventData),
		Metadata:   mustJSON(metadata),
		DeviceID:   deviceID,
	}, true
}

// extractExceptions reduces payload.exception.values to the stored shape.
func extractExceptions(payload map[string]any) []Exception {
	values := envelope.SliceField(envelope.MapField(payload, "exception"), "values")
	if len(values) == 0 {
		return nil
	}

	exceptions := make([]Exception, 0, len(values))
	for _, v := range values {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		exc := Exception{
			Type:  envelope.StringField(entry, "type"),
			Value: envelope.StringField(entry, "value"),
		}
		frames := envelope.SliceField(envelope.MapField(entry, "stacktrace"), "frames")
		for _, f := range frames {
			frame, ok := f.(map[string]any)
			if !ok {
				continue
			}
			exc.Stacktrace = append(exc.Stacktrace, Frame{
				Function:    envelope.StringField(frame, "function"),
				ContextLine: envelope.StringField(frame, "context_line"),
				PreContext:  stringSlice(envelope.SliceField(frame, "pre_context")),
				PostContext: stringSlice(envelope.SliceField(frame, "post_context")),
			})
		}
		exceptions = append(exceptions, exc)
	}
	return exceptions
}

// stringSlice keeps the string members of a decoded JSON array, returning
// nil (not an empty slice) when nothing remains so omitempty drops the key.
func stringSlice(vals []any) []string {
	var out []string
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// composeMessage assembles the single-line log message: event-type label,
// release, platform name, and a truncated summary of the primary message
// plus "type: value" per exception, empty segments dropped.
func composeMessage(eventType, release, platformName, message string, exceptions []Exception) string {
	summaryParts := make([]string, 0, len(exceptions)+1)
	if message != "" {
		summaryParts = append(summaryParts, message)
	}
	for _, exc := range exceptions {
		summaryParts = append(summaryParts, fmt.Sprintf("%s: %s", exc.Type, exc.Value))
	}
	summary := truncate(singleLine(strings.Join(summaryParts, messageDelimiter)), maxSummaryLen)

	// The release and platform segments come straight from the payload, so
	// the single-line guarantee is enforced on the joined whole.
	return singleLine(joinNonEmpty([]string{eventType, release, platformName, summary}, messageDelimiter))
}

func joinNonEmpty(parts []string, sep string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// truncate cuts s to at most max runes, trimming trailing whitespace and
// appending an ellipsis when anything was dropped.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}

// mustJSON serializes v to a JSON string. The inputs here are maps of
// decoded JSON values, which cannot fail to re-encode; the fallback keeps
// the row invariant (always valid JSON) even if that assumption breaks.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
