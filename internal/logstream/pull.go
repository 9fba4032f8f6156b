package logstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/logutil"
	"github.com/oremus-labs/ol-logstream/internal/metrics"
)

const pollRequestTimeout = 15 * time.Second

// pullTransport polls an endpoint that returns the complete history of a
// job and forwards only the events beyond its cursor.
type pullTransport struct {
	client      *http.Client
	header      http.Header
	interval    time.Duration
	maxFailures int
}

func (p *pullTransport) Run(ctx context.Context, locator string, out sink) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	cursor := 0
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		history, err := p.fetch(ctx, locator)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			metrics.ObservePollFailure()
			logutil.Debug("logstream_poll_failed", map[string]interface{}{
				"locator":  locator,
				"failures": failures,
				"error":    err.Error(),
			})
			if p.maxFailures > 0 && failures >= p.maxFailures {
				return fmt.Errorf("%w: %v", ErrTooManyFailures, err)
			}
			continue
		}
		failures = 0

		fresh, next := Reconcile(cursor, history)
		if len(fresh) > 0 && !out.Deliver(fresh) {
			return nil
		}
		cursor = next
	}
}

func (p *pullTransport) fetch(ctx context.Context, locator string) ([]events.RawEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, pollRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	for k, values := range p.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s failed: %s", req.URL.Path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return events.DecodeHistory(body)
}

// Reconcile returns the events of history beyond cursor and the cursor to
// use for the next cycle. A history shorter than the cursor yields nothing
// and moves the cursor back to its length.
func Reconcile(cursor int, history []events.RawEvent) ([]events.RawEvent, int) {
	if cursor >= len(history) {
		return nil, len(history)
	}
	if cursor < 0 {
		cursor = 0
	}
	return history[cursor:], len(history)
}
