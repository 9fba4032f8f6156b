package logstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/logutil"
)

// pushTransport follows a Server-Sent Events feed carrying one JSON event
// per message.
type pushTransport struct {
	client        *http.Client
	header        http.Header
	skipMalformed bool
}

func (p *pushTransport) Run(ctx context.Context, locator string, out sink) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return err
	}
	for k, values := range p.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s failed: %s", req.URL.Path, resp.Status)
	}

	return readMessages(ctx, resp.Body, func(data string) (bool, error) {
		evt, err := events.Decode([]byte(data))
		if err != nil {
			if p.skipMalformed {
				logutil.Warn("logstream_malformed_event_skipped", map[string]interface{}{
					"locator": locator,
					"error":   err.Error(),
				})
				return true, nil
			}
			return false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return out.Deliver([]events.RawEvent{evt}), nil
	})
}

// readMessages parses an SSE stream and hands the data of every unnamed
// ("message") event to handle. It returns nil at end of stream or when
// handle asks to stop.
func readMessages(ctx context.Context, body io.Reader, handle func(data string) (bool, error)) error {
	reader := bufio.NewReader(body)
	var (
		eventType string
		dataLines []string
	)

	dispatch := func() (bool, error) {
		defer func() {
			eventType = ""
			dataLines = dataLines[:0]
		}()
		if len(dataLines) == 0 {
			return true, nil
		}
		// Named events never reach an EventSource onmessage handler.
		if eventType != "" && eventType != "message" {
			return true, nil
		}
		return handle(strings.Join(dataLines, "\n"))
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// A trailing event without its blank line is never dispatched.
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			keepGoing, err := dispatch()
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line[len("data:"):], " "))
		}
	}
}
