package logcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps calls to the feed server that are not feed subscriptions.
type Client struct {
	BaseURL     string
	Token       string
	RoutePrefix string
	Timeout     time.Duration
}

// FeedURL returns the pull feed URL of a job, or its push stream URL.
func (c *Client) FeedURL(jobID string, stream bool) string {
	u := strings.TrimRight(c.BaseURL, "/") + c.prefix() + "/" + url.PathEscape(jobID)
	if stream {
		u += "/stream"
	}
	return u
}

// Header returns the headers every request to the server carries.
func (c *Client) Header() http.Header {
	h := http.Header{}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	return h
}

func (c *Client) prefix() string {
	p := strings.Trim(c.RoutePrefix, "/")
	if p == "" {
		p = "log"
	}
	return "/" + p
}

// Snapshot fetches the raw pull feed body of a job.
func (c *Client) Snapshot(ctx context.Context, jobID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FeedURL(jobID, false), nil)
	if err != nil {
		return nil, err
	}
	req.Header = c.Header()
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s failed: %s", req.URL.Path, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// PostJSON posts payload to path and decodes the response into target.
func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}, target interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header = c.Header()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed: %s", req.Method, req.URL.Path, resp.Status)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func (c *Client) httpClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}
