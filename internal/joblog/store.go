// Package joblog records the event logs that feeds serve to subscribers.
package joblog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/events"
)

var (
	// ErrNotFound is returned when a job log does not exist.
	ErrNotFound = errors.New("job log not found")
	// ErrClosed is returned when emitting into a log that already ended.
	ErrClosed = errors.New("job log closed")
)

// Store persists ordered job logs. Append returns the zero-based sequence
// number of the stored event.
type Store interface {
	Create(ctx context.Context, jobID, jobType string) error
	Append(ctx context.Context, jobID string, evt events.RawEvent) (int, error)
	Snapshot(ctx context.Context, jobID string) ([]events.RawEvent, error)
	Close() error
}

// Pruner is implemented by stores that need explicit retention sweeps.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type memoryLog struct {
	jobType string
	events  []events.RawEvent
	updated time.Time
}

// MemoryStore keeps logs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]*memoryLog
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]*memoryLog)}
}

// Create registers a job log. Creating an existing log is a no-op.
func (s *MemoryStore) Create(_ context.Context, jobID, jobType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[jobID]; !ok {
		s.logs[jobID] = &memoryLog{jobType: jobType, updated: time.Now()}
	}
	return nil
}

// Append adds evt to the end of the job log.
func (s *MemoryStore) Append(_ context.Context, jobID string, evt events.RawEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[jobID]
	if !ok {
		return 0, ErrNotFound
	}
	entry.events = append(entry.events, evt)
	entry.updated = time.Now()
	return len(entry.events) - 1, nil
}

// Snapshot returns a copy of the full job log.
func (s *MemoryStore) Snapshot(_ context.Context, jobID string) ([]events.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.logs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]events.RawEvent, len(entry.events))
	copy(out, entry.events)
	return out, nil
}

// Prune drops logs not updated since before.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, entry := range s.logs {
		if entry.updated.Before(before) {
			delete(s.logs, id)
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
