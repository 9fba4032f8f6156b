// Package render writes subscriber log buffers to a terminal or pipe.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/format"
	"github.com/oremus-labs/ol-logstream/internal/logstream"
)

// DefaultWaitingText is shown while a feed is active but still empty.
const DefaultWaitingText = "⏳ Starting…"

// Renderer writes one log entry. index is the entry's position in the buffer.
type Renderer interface {
	RenderEntry(w io.Writer, entry format.LogEntry, index int) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(w io.Writer, entry format.LogEntry, index int) error

// RenderEntry calls f.
func (f RendererFunc) RenderEntry(w io.Writer, entry format.LogEntry, index int) error {
	return f(w, entry, index)
}

// TextRenderer prints "<time>  <text>", tagging entries whose level is not info.
type TextRenderer struct{}

// RenderEntry implements Renderer.
func (TextRenderer) RenderEntry(w io.Writer, entry format.LogEntry, _ int) error {
	if entry.Level != "" && entry.Level != events.DefaultLevel {
		_, err := fmt.Fprintf(w, "%7s  [%s] %s\n", entry.T, entry.Level, entry.Text)
		return err
	}
	_, err := fmt.Fprintf(w, "%7s  %s\n", entry.T, entry.Text)
	return err
}

// JSONRenderer prints one JSON object per entry.
type JSONRenderer struct{}

// RenderEntry implements Renderer.
func (JSONRenderer) RenderEntry(w io.Writer, entry format.LogEntry, _ int) error {
	return json.NewEncoder(w).Encode(entry)
}

// PanelOptions configure a Panel.
type PanelOptions struct {
	Renderer    Renderer
	WaitingText string
}

// Panel is a logstream.Observer that writes each new entry exactly once.
type Panel struct {
	out         io.Writer
	renderer    Renderer
	waitingText string

	mu      sync.Mutex
	epoch   uint64
	written int
	waiting bool
	err     error
}

// NewPanel creates a panel writing to out.
func NewPanel(out io.Writer, opts PanelOptions) *Panel {
	if opts.Renderer == nil {
		opts.Renderer = TextRenderer{}
	}
	if opts.WaitingText == "" {
		opts.WaitingText = DefaultWaitingText
	}
	return &Panel{out: out, renderer: opts.Renderer, waitingText: opts.WaitingText}
}

// Update implements logstream.Observer.
func (p *Panel) Update(st logstream.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st.Epoch != p.epoch {
		p.epoch = st.Epoch
		p.written = 0
		p.waiting = false
	}
	if !st.Active && len(st.Entries) == 0 {
		return
	}
	if st.Active && len(st.Entries) == 0 {
		if !p.waiting {
			p.waiting = true
			if _, err := fmt.Fprintln(p.out, p.waitingText); err != nil && p.err == nil {
				p.err = err
			}
		}
		return
	}
	for i := p.written; i < len(st.Entries); i++ {
		if err := p.renderer.RenderEntry(p.out, st.Entries[i], i); err != nil && p.err == nil {
			p.err = err
		}
	}
	p.written = len(st.Entries)
}

// Written reports how many entries of the current epoch have been rendered.
func (p *Panel) Written() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Err returns the first write error, if any.
func (p *Panel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
