// Package format turns raw job events into display-ready log entries.
package format

import (
	"sort"

	"github.com/oremus-labs/ol-logstream/internal/events"
)

// LabelFunc renders the display text of a known event kind.
type LabelFunc func(events.RawEvent) string

// Func maps a raw event to display text. Returning false suppresses the entry.
type Func func(events.RawEvent) (string, bool)

var baseLabels = map[string]LabelFunc{
	"page_loaded":      constant("📄 Page loaded"),
	"batch_started":    constant("📦 Batch started"),
	"loading_strategy": func(e events.RawEvent) string { return "⚙️ Loading strategy: " + e.FieldText("strategy") },
	"llm_started":      constant("🤖 LLM started"),
	"llm_done":         constant("🤖 LLM done"),
	"cache_hit":        constant("⚡ Cache hit"),
	"search_started":   constant("🔍 Search started"),
	"search_done":      constant("🔍 Search done"),
	"browser_ready":    constant("🌐 Browser ready"),
	"retry":            func(e events.RawEvent) string { return "🔄 Retry " + e.FieldText("attempt") },
}

func constant(text string) LabelFunc {
	return func(events.RawEvent) string { return text }
}

// BaseLabels returns a copy of the built-in label set.
func BaseLabels() map[string]LabelFunc {
	out := make(map[string]LabelFunc, len(baseLabels))
	for k, fn := range baseLabels {
		out[k] = fn
	}
	return out
}

// Registry maps event kinds to label functions. It is immutable once built
// and may be shared across subscriptions.
type Registry struct {
	labels map[string]LabelFunc
}

// NewRegistry merges overrides over the base labels; overrides win.
func NewRegistry(overrides map[string]LabelFunc) *Registry {
	labels := BaseLabels()
	for k, fn := range overrides {
		if fn == nil {
			continue
		}
		labels[k] = fn
	}
	return &Registry{labels: labels}
}

var defaultRegistry = NewRegistry(nil)

// DefaultRegistry returns the registry holding only the base labels.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Lookup returns the label function for an event kind.
func (r *Registry) Lookup(kind string) (LabelFunc, bool) {
	fn, ok := r.labels[kind]
	return fn, ok
}

// Kinds lists the registered event kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.labels))
	for k := range r.labels {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Text renders the registered label for the event kind, falling back to the
// event message. Events with neither are suppressed.
func (r *Registry) Text(raw events.RawEvent) (string, bool) {
	if fn, ok := r.labels[raw.Event]; ok {
		return fn(raw), true
	}
	return raw.MessageText()
}
