package format

import (
	"testing"

	"github.com/oremus-labs/ol-logstream/internal/events"
)

func ptr[T any](v T) *T { return &v }

func TestFormatKnownKind(t *testing.T) {
	t.Parallel()

	entry, ok := New(nil, nil).Format(events.RawEvent{Event: "cache_hit"}, 0)
	if !ok {
		t.Fatal("expected cache_hit to produce an entry")
	}
	if entry.Text != "⚡ Cache hit" || entry.Level != "info" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestFormatMessageFallbackUsesServerTime(t *testing.T) {
	t.Parallel()

	raw := events.RawEvent{Level: "error", Message: ptr("boom"), T: ptr(12.34)}
	entry, ok := New(nil, nil).Format(raw, 99)
	if !ok {
		t.Fatal("expected entry")
	}
	want := LogEntry{Text: "boom", Level: "error", T: "12.3s"}
	if entry != want {
		t.Fatalf("got %+v want %+v", entry, want)
	}
}

func TestFormatUsesElapsedWithoutServerTime(t *testing.T) {
	t.Parallel()

	entry, ok := New(nil, nil).Format(events.RawEvent{Message: ptr("hi")}, 3.5)
	if !ok || entry.T != "3.5s" {
		t.Fatalf("unexpected entry: %+v ok=%v", entry, ok)
	}
}

func TestFormatSuppressesUnknownKindWithoutMessage(t *testing.T) {
	t.Parallel()

	if entry, ok := New(nil, nil).Format(events.RawEvent{Event: "heartbeat"}, 1); ok {
		t.Fatalf("expected suppression, got %+v", entry)
	}
}

func TestCustomFuncOverridesRegistry(t *testing.T) {
	t.Parallel()

	custom := func(raw events.RawEvent) (string, bool) {
		if raw.Event == "retry" {
			return "", false
		}
		return "custom:" + raw.Event, true
	}
	f := New(nil, custom)

	entry, ok := f.Format(events.RawEvent{Event: "cache_hit"}, 0)
	if !ok || entry.Text != "custom:cache_hit" {
		t.Fatalf("custom formatter not used: %+v", entry)
	}
	if _, ok := f.Format(events.RawEvent{Event: "retry"}, 0); ok {
		t.Fatal("custom formatter should be able to suppress")
	}
}

func TestRegistryOverridesWin(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(map[string]LabelFunc{
		"cache_hit": func(events.RawEvent) string { return "hit!" },
		"step":      func(e events.RawEvent) string { return "step " + e.FieldText("n") },
	})

	text, ok := reg.Text(events.RawEvent{Event: "cache_hit"})
	if !ok || text != "hit!" {
		t.Fatalf("override not applied: %q", text)
	}
	text, _ = reg.Text(events.RawEvent{Event: "step", Fields: map[string]interface{}{"n": float64(3)}})
	if text != "step 3" {
		t.Fatalf("unexpected step label %q", text)
	}
	text, _ = reg.Text(events.RawEvent{Event: "retry", Fields: map[string]interface{}{"attempt": float64(2)}})
	if text != "🔄 Retry 2" {
		t.Fatalf("base label lost: %q", text)
	}

	if text, _ := DefaultRegistry().Text(events.RawEvent{Event: "cache_hit"}); text != "⚡ Cache hit" {
		t.Fatalf("overrides leaked into the default registry: %q", text)
	}
}

func TestLoadingStrategyWithoutField(t *testing.T) {
	t.Parallel()

	text, _ := DefaultRegistry().Text(events.RawEvent{Event: "loading_strategy"})
	if text != "⚙️ Loading strategy: " {
		t.Fatalf("unexpected label %q", text)
	}
}

func TestParseLabels(t *testing.T) {
	t.Parallel()

	labels, err := ParseLabels([]byte(`
labels:
  retry: 'attempt {{.Field "attempt"}} ({{.Level}})'
  step: '{{.Message}}!'
`))
	if err != nil {
		t.Fatalf("ParseLabels: %v", err)
	}
	reg := NewRegistry(labels)

	text, _ := reg.Text(events.RawEvent{Event: "retry", Level: "warning", Fields: map[string]interface{}{"attempt": float64(4)}})
	if text != "attempt 4 (warning)" {
		t.Fatalf("unexpected retry label %q", text)
	}
	text, _ = reg.Text(events.RawEvent{Event: "step", Message: ptr("go")})
	if text != "go!" {
		t.Fatalf("unexpected step label %q", text)
	}

	if _, err := ParseLabels([]byte("labels:\n  bad: '{{.Nope'\n")); err == nil {
		t.Fatal("expected template error")
	}
}
