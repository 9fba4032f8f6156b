package joblog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/logutil"
	"github.com/oremus-labs/ol-logstream/internal/metrics"
)

type eventPublisher interface {
	Publish(context.Context, events.Message) error
}

// Manager creates job logs and hands out live subscriptions to them.
type Manager struct {
	store     Store
	bus       *events.Bus
	storeName string
	now       func() time.Time

	mu      sync.Mutex
	loggers map[string]*Logger
}

// Options configures the manager.
type Options struct {
	Store     Store
	Bus       *events.Bus
	StoreName string
	Now       func() time.Time
}

// NewManager constructs a manager. A memory store and a local bus are used when
// none are supplied.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
		opts.StoreName = "memory"
	}
	if opts.StoreName == "" {
		opts.StoreName = "custom"
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus(events.Options{})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:     opts.Store,
		bus:       opts.Bus,
		storeName: opts.StoreName,
		now:       opts.Now,
		loggers:   make(map[string]*Logger),
	}
}

// Start creates a new job log with a fresh ID.
func (m *Manager) Start(ctx context.Context, jobType string) (*Logger, error) {
	return m.Attach(ctx, uuid.NewString(), jobType)
}

// Attach opens a logger for jobID, creating the log if needed. Workers use it
// to continue a log created by the server that enqueued the job. An open
// logger for the same job in this process is returned as is.
func (m *Manager) Attach(ctx context.Context, jobID, jobType string) (*Logger, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loggers[jobID]; ok {
		return l, nil
	}
	if err := m.store.Create(ctx, jobID, jobType); err != nil {
		return nil, fmt.Errorf("create job log %s: %w", jobID, err)
	}
	l := &Logger{
		id:        jobID,
		store:     m.store,
		pub:       m.bus,
		storeName: m.storeName,
		now:       m.now,
		start:     m.now(),
		onClose:   m.release,
	}
	m.loggers[jobID] = l
	return l, nil
}

// Get returns the open logger for jobID, if this process holds one.
func (m *Manager) Get(jobID string) (*Logger, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loggers[jobID]
	return l, ok
}

func (m *Manager) release(jobID string) {
	m.mu.Lock()
	delete(m.loggers, jobID)
	m.mu.Unlock()
}

// Snapshot returns the full history of a job log.
func (m *Manager) Snapshot(ctx context.Context, jobID string) ([]events.RawEvent, error) {
	return m.store.Snapshot(ctx, jobID)
}

// Subscribe streams events appended to jobID from now on.
func (m *Manager) Subscribe(ctx context.Context, jobID string) (<-chan events.Message, func()) {
	return m.bus.Subscribe(ctx, jobID)
}

// Prune removes logs older than ttl when the store needs explicit sweeps.
func (m *Manager) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	p, ok := m.store.(Pruner)
	if !ok || ttl <= 0 {
		return 0, nil
	}
	return p.Prune(ctx, m.now().Add(-ttl))
}

// Close releases the store and the bus.
func (m *Manager) Close() error {
	m.bus.Close()
	return m.store.Close()
}

// Logger appends events to one job log. It is safe for concurrent use.
type Logger struct {
	id        string
	store     Store
	pub       eventPublisher
	storeName string
	now       func() time.Time
	start     time.Time
	onClose   func(string)

	mu     sync.Mutex
	closed bool
}

// ID returns the job identifier.
func (l *Logger) ID() string {
	return l.id
}

// Log appends a plain message entry of kind "log". An empty level is stored
// as info.
func (l *Logger) Log(ctx context.Context, message, level string) error {
	if level == "" {
		level = events.DefaultLevel
	}
	return l.Emit(ctx, events.RawEvent{Event: events.KindLog, Message: &message, Level: level})
}

// Emit appends evt. A missing t is filled with the seconds elapsed since the
// logger was opened, rounded to milliseconds.
func (l *Logger) Emit(ctx context.Context, evt events.RawEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if evt.T == nil {
		t := math.Round(l.now().Sub(l.start).Seconds()*1000) / 1000
		evt.T = &t
	}

	seq, err := l.store.Append(ctx, l.id, evt)
	metrics.ObserveJobEvent(l.storeName, err)
	if err != nil {
		return err
	}
	if evt.IsTerminal() {
		l.closed = true
		if l.onClose != nil {
			l.onClose(l.id)
			l.onClose = nil
		}
	}
	if err := l.pub.Publish(ctx, events.Message{JobID: l.id, Seq: seq, Event: evt}); err != nil {
		logutil.Warn("joblog_publish_failed", map[string]interface{}{
			"jobId": l.id,
			"seq":   seq,
			"error": err.Error(),
		})
	}
	return nil
}

// Detach forgets the logger in this process without ending the log, for jobs
// handed to another process that will continue it via Attach.
func (l *Logger) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onClose != nil {
		l.onClose(l.id)
		l.onClose = nil
	}
}

// Close emits the terminal event once. Closing an ended log is a no-op.
func (l *Logger) Close(ctx context.Context) error {
	err := l.Emit(ctx, events.Done())
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
