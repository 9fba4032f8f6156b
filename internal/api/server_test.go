package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/handlers"
	"github.com/oremus-labs/ol-logstream/internal/joblog"
	"github.com/oremus-labs/ol-logstream/internal/jobs"
	"github.com/oremus-labs/ol-logstream/internal/logstream"
	"github.com/oremus-labs/ol-logstream/internal/render"
)

func TestDemoJobOverBothTransports(t *testing.T) {
	t.Parallel()

	for _, transport := range []string{logstream.TransportPush, logstream.TransportPull} {
		transport := transport
		t.Run(transport, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, Options{RoutePrefix: "/feeds/"})
			id := startJob(t, srv.URL, "")

			sub, err := logstream.New(logstream.Options{
				Transport:    transport,
				PollInterval: 20 * time.Millisecond,
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			var out bytes.Buffer
			panel := render.NewPanel(&out, render.PanelOptions{})
			stop := sub.Watch(panel)
			defer stop()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sub.Subscribe(ctx, srv.URL+"/feeds/"+id+feedSuffix(transport))
			st, err := sub.Wait(ctx)
			if err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if st.Err != nil || st.Active {
				t.Fatalf("unexpected final state %+v", st)
			}

			var texts []string
			for _, e := range st.Entries {
				texts = append(texts, e.Text)
			}
			if got := strings.Join(texts, "|"); got != "Step 1 of 2|Step 2 of 2|Done" {
				t.Fatalf("unexpected entries %q", got)
			}
			if st.Entries[2].Level != "success" {
				t.Fatalf("expected success level, got %q", st.Entries[2].Level)
			}
			if !strings.Contains(out.String(), "[success] Done") {
				t.Fatalf("panel missing final entry:\n%s", out.String())
			}
		})
	}
}

func TestStartRequiresToken(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Options{APIToken: "secret"})

	resp, err := http.Post(srv.URL+"/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	if id := startJob(t, srv.URL, "secret"); id == "" {
		t.Fatal("expected job id with valid token")
	}
}

func TestHealthAndRequestID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Options{})
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-ID") != "abc" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("X-Request-ID"))
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":        DefaultRoutePrefix,
		"logs":    "/logs",
		"/logs/":  "/logs",
		" /a/b ": "/a/b",
	}
	for in, want := range cases {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func feedSuffix(transport string) string {
	if transport == logstream.TransportPush {
		return "/stream"
	}
	return ""
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	logs := joblog.NewManager(joblog.Options{})
	t.Cleanup(func() { _ = logs.Close() })
	runner := jobs.New(jobs.Options{Logs: logs, Steps: 2, StepInterval: 10 * time.Millisecond})
	server := NewServer(handlers.New(logs, runner, handlers.Options{}), opts)
	srv := httptest.NewServer(server.Engine())
	t.Cleanup(srv.Close)
	return srv
}

func startJob(t *testing.T, base, token string) string {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, base+"/start", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /start: status %d", resp.StatusCode)
	}
	var body struct {
		ID string `json:"log_job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.ID
}

func TestOpenAPIUsesRoutePrefix(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Options{RoutePrefix: "feeds"})
	resp, err := http.Get(srv.URL + "/openapi")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var doc struct {
		Paths map[string]interface{} `json:"paths"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := doc.Paths["/feeds/{id}"]; !ok {
		t.Fatalf("expected prefixed paths, got %v", doc.Paths)
	}
}
