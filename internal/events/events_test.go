package events

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
	"time"
)

func TestDecodeKeepsKindSpecificFields(t *testing.T) {
	t.Parallel()

	evt, err := Decode([]byte(`{"event":"retry","attempt":2,"level":"warning","t":1.25}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if evt.Event != "retry" || evt.Level != "warning" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.T == nil || *evt.T != 1.25 {
		t.Fatalf("expected t=1.25, got %v", evt.T)
	}
	if got := evt.FieldText("attempt"); got != "2" {
		t.Fatalf("expected attempt 2, got %q", got)
	}
	if _, ok := evt.MessageText(); ok {
		t.Fatalf("expected no message")
	}

	encoded, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back map[string]interface{}
	if err := json.Unmarshal(encoded, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back["attempt"] != float64(2) || back["event"] != "retry" {
		t.Fatalf("fields lost on re-encode: %s", encoded)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":      `{"event":`,
		"not an object": `[1,2,3]`,
		"bad level":     `{"level":5}`,
		"bad t":         `{"t":"soon"}`,
	}
	for name, payload := range cases {
		if _, err := Decode([]byte(payload)); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("%s: expected ErrInvalidEvent, got %v", name, err)
		}
	}
}

func TestDecodeHistory(t *testing.T) {
	t.Parallel()

	logs, err := DecodeHistory([]byte(`{"logs":[{"event":"log","message":"a"},{"event":"cache_hit"}]}`))
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	if len(logs) != 2 || logs[1].Event != "cache_hit" {
		t.Fatalf("unexpected history: %+v", logs)
	}
	if msg, _ := logs[0].MessageText(); msg != "a" {
		t.Fatalf("unexpected message %q", msg)
	}

	if _, err := DecodeHistory([]byte(`{"entries":[]}`)); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected missing logs to be rejected, got %v", err)
	}
}

func TestLevelOrDefault(t *testing.T) {
	t.Parallel()

	if got := (RawEvent{}).LevelOrDefault(); got != DefaultLevel {
		t.Fatalf("expected default level, got %q", got)
	}
	if got := NewLog("x", "error", 0).LevelOrDefault(); got != "error" {
		t.Fatalf("expected error level, got %q", got)
	}
}

func TestBusDeliversOnlySubscribedJob(t *testing.T) {
	t.Parallel()

	bus := NewBus(Options{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsubscribe := bus.Subscribe(ctx, "job-a")
	defer unsubscribe()

	if err := bus.Publish(ctx, Message{JobID: "job-b", Seq: 0, Event: NewLog("other", "info", 0)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := bus.Publish(ctx, Message{JobID: "job-a", Seq: 0, Event: NewLog("mine", "info", 0)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-ch:
		if msg.JobID != "job-a" {
			t.Fatalf("received message for %s", msg.JobID)
		}
		if text, _ := msg.Event.MessageText(); text != "mine" {
			t.Fatalf("unexpected message %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

// Not parallel: it counts goroutines.
func TestBusCancelReleasesContextWatch(t *testing.T) {
	bus := NewBus(Options{})
	defer bus.Close()

	before := runtime.NumGoroutine()
	for i := 0; i < 200; i++ {
		_, unsubscribe := bus.Subscribe(context.Background(), "job-a")
		unsubscribe()
	}
	if after := runtime.NumGoroutine(); after > before+10 {
		t.Fatalf("subscriptions left goroutines behind: %d before, %d after", before, after)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, unsubscribe := bus.Subscribe(ctx, "job-a")
	defer unsubscribe()
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected message")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}
