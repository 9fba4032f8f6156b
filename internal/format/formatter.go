package format

import (
	"fmt"

	"github.com/oremus-labs/ol-logstream/internal/events"
)

// LogEntry is the display-ready unit derived from one raw event.
type LogEntry struct {
	Text  string `json:"text"`
	Level string `json:"level"`
	T     string `json:"t"`
}

// Formatter builds log entries. A custom Func, when set, replaces the
// registry lookup entirely.
type Formatter struct {
	registry *Registry
	custom   Func
}

// New returns a formatter. A nil registry selects the base labels.
func New(registry *Registry, custom Func) *Formatter {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Formatter{registry: registry, custom: custom}
}

// Format converts raw into an entry. elapsed is used as the time label when
// the event carries no server timestamp. It reports false when the entry is
// suppressed.
func (f *Formatter) Format(raw events.RawEvent, elapsed float64) (LogEntry, bool) {
	var (
		text string
		ok   bool
	)
	if f.custom != nil {
		text, ok = f.custom(raw)
	} else {
		text, ok = f.registry.Text(raw)
	}
	if !ok {
		return LogEntry{}, false
	}

	t := elapsed
	if raw.T != nil {
		t = *raw.T
	}
	return LogEntry{
		Text:  text,
		Level: raw.LevelOrDefault(),
		T:     Seconds(t),
	}, true
}

// Seconds renders a time label with one decimal, e.g. "3.5s".
func Seconds(t float64) string {
	return fmt.Sprintf("%.1fs", t)
}
