package envelope

import (
	"testing"
)

func TestParseJSONObject_Valid(t *testing.T) {
	obj := ParseJSONObject(`{"type":"event","length":42}`)
	if StringField(obj, "type") != "event" {
		t.Errorf("type = %q, want %q", StringField(obj, "type"), "event")
	}
}

func TestParseJSONObject_NeverFails(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty string", ""},
		{"truncated object", `{"type":"ev`},
		{"array", `[1,2,3]`},
		{"bare string", `"hello"`},
		{"number", `42`},
		{"null", `null`},
		{"garbage", "\x00\xff not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := ParseJSONObject(tt.line)
			if obj == nil {
				t.Fatal("ParseJSONObject() returned nil")
			}
			if len(obj) != 0 {
				t.Errorf("ParseJSONObject() = %v, want empty map", obj)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines("a\nb\nc")
	if len(lines) != 3 {
		t.Fatalf("SplitLines() returned %d lines, want 3", len(lines))
	}

	// An empty body still yields one (empty) line.
	lines = SplitLines("")
	if len(lines) != 1 || lines[0] != "" {
		t.Errorf("SplitLines(\"\") = %v, want one empty line", lines)
	}
}

func TestParseHeader(t *testing.T) {
	h := ParseHeader(`{"event_id":"abc123","sent_at":"2024-01-01T00:00:00Z","sdk":{"name":"sentry.javascript.electron","version":"4.6.0"}}`)
	if h.EventID != "abc123" {
		t.Errorf("EventID = %q, want %q", h.EventID, "abc123")
	}
	if h.SentAt != "2024-01-01T00:00:00Z" {
		t.Errorf("SentAt = %q", h.SentAt)
	}
	if h.SDKName != "sentry.javascript.electron" {
		t.Errorf("SDKName = %q", h.SDKName)
	}
	if h.SDKVersion != "4.6.0" {
		t.Errorf("SDKVersion = %q", h.SDKVersion)
	}
}

func TestParseHeader_Malformed(t *testing.T) {
	h := ParseHeader("not json at all")
	if h.EventID != "" || h.SentAt != "" || h.SDKName != "" {
		t.Errorf("ParseHeader() on garbage = %+v, want zero value", h)
	}
}

func TestFindEventItem(t *testing.T) {
	lines := []string{
		`{"event_id":"e1"}`,
		`{"type":"session"}`,
		`{"status":"ok"}`,
		`{"type":"event"}`,
		`{"message":"boom"}`,
	}

	def, payload, ok := FindEventItem(lines)
	if !ok {
		t.Fatal("FindEventItem() did not find the event item")
	}
	if def != `{"type":"event"}` {
		t.Errorf("def = %q", def)
	}
	if payload != `{"message":"boom"}` {
		t.Errorf("payload = %q", payload)
	}
}

func TestFindEventItem_NoEvent(t *testing.T) {
	lines := []string{
		`{"event_id":"e1"}`,
		`{"type":"transaction"}`,
		`{"spans":[]}`,
	}

	if _, _, ok := FindEventItem(lines); ok {
		t.Error("FindEventItem() found an event item in a transaction-only envelope")
	}
}

func TestFindEventItem_TrailingDefinitionWithoutPayload(t *testing.T) {
	lines := []string{
		`{"event_id":"e1"}`,
		`{"type":"event"}`,
	}

	if _, _, ok := FindEventItem(lines); ok {
		t.Error("FindEventItem() matched a definition with no payload line")
	}
}

func TestExtractProjectID(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"standard envelope path", "/api/2/envelope/", "2"},
		{"numeric project", "/api/123456/envelope/", "123456"},
		{"no trailing slash", "/api/7/envelope", "7"},
		{"too few segments", "/api/2", ""},
		{"root", "/", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractProjectID(tt.path); got != tt.want {
				t.Errorf("ExtractProjectID(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
