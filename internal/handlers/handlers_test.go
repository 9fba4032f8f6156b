package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/joblog"
	"github.com/oremus-labs/ol-logstream/internal/jobs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStarter struct {
	id  string
	err error
	req jobs.Request
}

func (f *fakeStarter) Start(_ context.Context, req jobs.Request) (string, error) {
	f.req = req
	return f.id, f.err
}

func TestSnapshotReturnsHistory(t *testing.T) {
	t.Parallel()

	logs := newLogs(t)
	logger := startLog(t, logs)
	if err := logger.Log(context.Background(), "Step 1 of 1", "info"); err != nil {
		t.Fatalf("Log: %v", err)
	}

	handler := New(logs, nil, Options{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/log/"+logger.ID(), nil)
	c.Params = gin.Params{{Key: "id", Value: logger.ID()}}

	handler.Snapshot(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", w.Code)
	}
	history, err := events.DecodeHistory(w.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	if len(history) != 1 || history[0].Event != events.KindLog {
		t.Fatalf("unexpected history %+v", history)
	}
	if !strings.Contains(w.Body.String(), `"event":"log"`) {
		t.Fatalf("log kind missing from payload %s", w.Body.String())
	}
}

func TestSnapshotNotFound(t *testing.T) {
	t.Parallel()

	handler := New(newLogs(t), nil, Options{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/log/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Snapshot(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"error":"not found"}` {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestStreamReplaysFinishedLog(t *testing.T) {
	t.Parallel()

	logs := newLogs(t)
	logger := startLog(t, logs)
	ctx := context.Background()
	_ = logger.Log(ctx, "one", "info")
	_ = logger.Log(ctx, "two", "warning")
	_ = logger.Close(ctx)

	srv := newServer(t, New(logs, nil, Options{}))
	payloads := readStream(t, srv.URL+"/log/"+logger.ID()+"/stream")

	if len(payloads) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(payloads), payloads)
	}
	evt, err := events.Decode([]byte(payloads[1]))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg, _ := evt.MessageText(); msg != "two" || evt.Level != "warning" {
		t.Fatalf("unexpected event %+v", evt)
	}
	last, _ := events.Decode([]byte(payloads[2]))
	if !last.IsTerminal() {
		t.Fatalf("expected terminal event, got %s", payloads[2])
	}
}

func TestStreamFollowsLiveEvents(t *testing.T) {
	t.Parallel()

	logs := newLogs(t)
	logger := startLog(t, logs)
	ctx := context.Background()
	_ = logger.Log(ctx, "before", "info")

	srv := newServer(t, New(logs, nil, Options{KeepAlive: 10 * time.Millisecond}))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = logger.Log(ctx, "after", "info")
		_ = logger.Close(ctx)
	}()

	payloads := readStream(t, srv.URL+"/log/"+logger.ID()+"/stream")
	var texts []string
	for _, p := range payloads {
		evt, err := events.Decode([]byte(p))
		if err != nil {
			t.Fatalf("Decode %q: %v", p, err)
		}
		if msg, ok := evt.MessageText(); ok {
			texts = append(texts, msg)
		}
	}
	if strings.Join(texts, ",") != "before,after" {
		t.Fatalf("unexpected messages %v", texts)
	}
}

func TestStreamNotFound(t *testing.T) {
	t.Parallel()

	srv := newServer(t, New(newLogs(t), nil, Options{}))
	resp, err := http.Get(srv.URL + "/log/missing/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStartJob(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{id: "job-42"}
	handler := New(newLogs(t), starter, Options{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{"steps":3}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.StartJob(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["log_job_id"] != "job-42" || starter.req.Steps != 3 {
		t.Fatalf("unexpected response %v / %+v", body, starter.req)
	}
}

func TestStartJobErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		starter jobStarter
		want    int
	}{
		{name: "disabled", starter: nil, want: http.StatusServiceUnavailable},
		{name: "failure", starter: &fakeStarter{err: errors.New("boom")}, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			handler := New(newLogs(t), tc.starter, Options{})
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/start", nil)
			handler.StartJob(c)
			if w.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, w.Code)
			}
		})
	}
}

func newLogs(t *testing.T) *joblog.Manager {
	t.Helper()
	logs := joblog.NewManager(joblog.Options{})
	t.Cleanup(func() { _ = logs.Close() })
	return logs
}

func startLog(t *testing.T, logs *joblog.Manager) *joblog.Logger {
	t.Helper()
	logger, err := logs.Start(context.Background(), "test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return logger
}

func newServer(t *testing.T, handler *Handler) *httptest.Server {
	t.Helper()
	engine := gin.New()
	engine.GET("/log/:id", handler.Snapshot)
	engine.GET("/log/:id/stream", handler.StreamLogs)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

// readStream collects data payloads until the server closes the stream.
func readStream(t *testing.T, url string) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var payloads []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}
	if ctx.Err() != nil {
		t.Fatal("stream did not end after the terminal event")
	}
	return payloads
}
