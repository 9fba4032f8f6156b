// Package handlers provides HTTP request handlers for the log feed API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/joblog"
	"github.com/oremus-labs/ol-logstream/internal/jobs"
	"github.com/oremus-labs/ol-logstream/internal/metrics"
)

// Options configures handler runtime behavior.
type Options struct {
	KeepAlive time.Duration
}

type logSource interface {
	Snapshot(ctx context.Context, jobID string) ([]events.RawEvent, error)
	Subscribe(ctx context.Context, jobID string) (<-chan events.Message, func())
}

type jobStarter interface {
	Start(ctx context.Context, req jobs.Request) (string, error)
}

// Handler encapsulates dependencies for HTTP handlers.
type Handler struct {
	logs logSource
	jobs jobStarter
	opts Options
}

// New creates a new Handler instance. jobs may be nil when the demo job
// endpoint is disabled.
func New(logs logSource, starter jobStarter, opts Options) *Handler {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	return &Handler{logs: logs, jobs: starter, opts: opts}
}

// Health returns the health status of the service.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Snapshot returns the full history of a job log for polling clients.
func (h *Handler) Snapshot(c *gin.Context) {
	history, err := h.logs.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, events.History{Logs: history})
}

// StreamLogs replays a job log and then follows it as server-sent events.
// The stream ends after the terminal event.
func (h *Handler) StreamLogs(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	// Subscribe before reading history so nothing appended in between is lost.
	live, cancel := h.logs.Subscribe(ctx, jobID)
	defer cancel()

	history, err := h.logs.Snapshot(ctx, jobID)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	defer metrics.StreamClientConnected()()

	next := 0
	replay := func(batch []events.RawEvent) bool {
		for ; next < len(batch); next++ {
			if err := writeEvent(w, batch[next]); err != nil {
				return true
			}
			if batch[next].IsTerminal() {
				return true
			}
		}
		w.Flush()
		return false
	}
	if replay(history) {
		w.Flush()
		return
	}

	ticker := time.NewTicker(h.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			w.Flush()
		case msg, ok := <-live:
			if !ok {
				return
			}
			if msg.Seq < next {
				continue
			}
			if msg.Seq > next {
				// Missed events (bus backlog or another replica): catch up from the store.
				history, err := h.logs.Snapshot(ctx, jobID)
				if err != nil {
					log.Printf("handlers: catch-up for job %s failed: %v", jobID, err)
					return
				}
				if replay(history) {
					w.Flush()
					return
				}
				continue
			}
			if err := writeEvent(w, msg.Event); err != nil {
				return
			}
			next++
			w.Flush()
			if msg.Event.IsTerminal() {
				return
			}
		}
	}
}

// StartJob launches a demo job and returns the ID of its log.
func (h *Handler) StartJob(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "jobs disabled"})
		return
	}
	var req jobs.Request
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	id, err := h.jobs.Start(c.Request.Context(), req)
	if err != nil {
		log.Printf("Failed to start job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log_job_id": id})
}

func (h *Handler) writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, joblog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	log.Printf("Failed to load job log %s: %v", c.Param("id"), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job log"})
}

func writeEvent(w io.Writer, evt events.RawEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
