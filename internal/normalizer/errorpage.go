package normalizer

import (
	"net/url"
	"time"
)

// FromErrorPage builds a minimal row from a form-encoded error-page embed
// submission (the crash-report dialog POSTs eventId/name/email/comments).
// This is a best-effort secondary ingestion path: the caller schedules it in
// the background and never blocks forwarding on it.
func FromErrorPage(form url.Values, originIP string) Row {
	eventID := form.Get("eventId")

	eventData := map[string]any{}
	for key, vals := range form {
		if key == "eventId" || len(vals) == 0 {
			continue
		}
		eventData[key] = vals[0]
	}

	metadata := map[string]any{}
	if eventID != "" {
		metadata["sentryEventID"] = eventID
	}
	if originIP != "" {
		metadata["ip"] = originIP
	}

	return Row{
		CreatedAt:  time.Now().UTC(),
		LogLevel:   "error",
		LogMessage: joinNonEmpty([]string{EventTypeErrorPage, truncate(singleLine(form.Get("comments")), maxSummaryLen)}, messageDelimiter),
		EventType:  EventTypeErrorPage,
		EventData:  mustJSON(eventData),
		Metadata:   mustJSON(metadata),
	}
}
