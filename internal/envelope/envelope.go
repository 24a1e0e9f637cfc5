// Package envelope parses the Sentry envelope wire format: one JSON header
// line followed by pairs of item-definition and item-payload JSON lines.
// Decoding is deliberately tolerant: a malformed line never produces an
// error, only an empty object, so downstream field access is always safe.
package envelope

import (
	"encoding/json"
	"strings"
)

// SplitLines splits a raw envelope body on newlines. It never fails; an
// empty body yields a single empty line.
func SplitLines(body string) []string {
	return strings.Split(body, "\n")
}

// ParseJSONObject decodes a single line as a JSON object. Malformed input,
// non-object input, and JSON null all decode to an empty map, never an error.
func ParseJSONObject(line string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

// Header is the decoded first line of an envelope.
type Header struct {
	EventID    string
	SentAt     string
	SDKName    string
	SDKVersion string
}

// ParseHeader decodes the envelope header line. Missing or malformed fields
// are left zero-valued.
func ParseHeader(line string) Header {
	obj := ParseJSONObject(line)
	h := Header{
		EventID: StringField(obj, "event_id"),
		SentAt:  StringField(obj, "sent_at"),
	}
	if sdk := MapField(obj, "sdk"); len(sdk) > 0 {
		h.SDKName = StringField(sdk, "name")
		h.SDKVersion = StringField(sdk, "version")
	}
	return h
}

// FindEventItem scans the item pairs following the header line and returns
// the definition and payload lines of the first item whose type
// discriminator is "event". Other item types (transactions, attachments,
// sessions) are skipped. A trailing definition without a payload line is
// ignored.
func FindEventItem(lines []string) (def, payload string, ok bool) {
	for i := 1; i+1 < len(lines); i += 2 {
		d := ParseJSONObject(lines[i])
		if StringField(d, "type") == "event" {
			return lines[i], lines[i+1], true
		}
	}
	return "", "", false
}

// ExtractProjectID pulls the project identifier out of an ingest path of the
// form /<prefix>/<projectId>/envelope/. The path must have at least four
// slash-delimited segments; the project ID is segment index 2. Returns ""
// when no project ID can be extracted.
func ExtractProjectID(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[2]
}

// StringField returns m[key] if it is a string, else "".
func StringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// FloatField returns m[key] if it is a JSON number, with ok reporting
// presence.
func FloatField(m map[string]any, key string) (float64, bool) {
	f, ok := m[key].(float64)
	return f, ok
}

// MapField returns m[key] if it is a JSON object, else an empty map.
func MapField(m map[string]any, key string) map[string]any {
	v, ok := m[key].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return v
}

// SliceField returns m[key] if it is a JSON array, else nil.
func SliceField(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}
