package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/oremus-labs/ol-logstream/internal/format"
	"github.com/oremus-labs/ol-logstream/internal/logstream"
)

func TestPanelWritesEachEntryOnce(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	panel := NewPanel(&out, PanelOptions{})

	entries := []format.LogEntry{
		{Text: "Step 1 of 5", Level: "info", T: "1.0s"},
		{Text: "Done", Level: "success", T: "6.0s"},
	}
	panel.Update(logstream.State{Epoch: 1, Active: true})
	panel.Update(logstream.State{Epoch: 1, Active: true})
	panel.Update(logstream.State{Epoch: 1, Active: true, Entries: entries[:1]})
	panel.Update(logstream.State{Epoch: 1, Active: false, Entries: entries})

	want := DefaultWaitingText + "\n" +
		"   1.0s  Step 1 of 5\n" +
		"   6.0s  [success] Done\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", out.String(), want)
	}
	if panel.Written() != 2 {
		t.Fatalf("expected 2 written, got %d", panel.Written())
	}
}

func TestPanelStaysSilentWhenInactiveAndEmpty(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	panel := NewPanel(&out, PanelOptions{WaitingText: "waiting"})
	panel.Update(logstream.State{})
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestPanelResetsOnNewEpoch(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	panel := NewPanel(&out, PanelOptions{Renderer: RendererFunc(func(w io.Writer, e format.LogEntry, i int) error {
		_, err := fmt.Fprintf(w, "%d:%s\n", i, e.Text)
		return err
	}), WaitingText: "..."})

	panel.Update(logstream.State{Epoch: 1, Active: true, Entries: []format.LogEntry{{Text: "a"}}})
	panel.Update(logstream.State{Epoch: 2, Active: true, Entries: []format.LogEntry{{Text: "b"}}})

	if got := out.String(); got != "0:a\n0:b\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestJSONRenderer(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := (JSONRenderer{}).RenderEntry(&out, format.LogEntry{Text: "boom", Level: "error", T: "12.3s"}, 0); err != nil {
		t.Fatalf("RenderEntry: %v", err)
	}
	if strings.TrimSpace(out.String()) != `{"text":"boom","level":"error","t":"12.3s"}` {
		t.Fatalf("unexpected json %q", out.String())
	}
}
