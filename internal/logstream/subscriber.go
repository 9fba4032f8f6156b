// Package logstream follows a job's event feed and maintains the ordered,
// display-ready log buffer for it.
//
// A Subscriber owns at most one session at a time. Every session is tagged
// with the epoch it was started under; results from a superseded epoch are
// discarded before they reach the buffer.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/format"
	"github.com/oremus-labs/ol-logstream/internal/logutil"
	"github.com/oremus-labs/ol-logstream/internal/metrics"
)

const (
	// TransportPush follows a Server-Sent Events feed.
	TransportPush = "push"
	// TransportPull polls a JSON snapshot of the full history.
	TransportPull = "pull"

	// DefaultPollInterval is the pull cadence when none is configured.
	DefaultPollInterval = 3 * time.Second
)

var (
	// ErrStreamClosed reports a push feed that ended without a terminal event.
	ErrStreamClosed = errors.New("event stream closed")
	// ErrMalformedEvent reports a pushed message that is not a valid event.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrTooManyFailures reports a pull session that hit its failure limit.
	ErrTooManyFailures = errors.New("too many consecutive poll failures")
)

// Options configure a Subscriber.
type Options struct {
	// Transport is TransportPush (default) or TransportPull.
	Transport string
	// PollInterval applies to TransportPull only.
	PollInterval time.Duration
	// FormatEvent replaces the registry lookup when set.
	FormatEvent format.Func
	// Registry supplies event labels; nil selects the base labels.
	Registry *format.Registry
	// HTTPClient performs feed requests; nil uses a default client.
	HTTPClient *http.Client
	// Header is added to every feed request.
	Header http.Header
	// SkipMalformed drops unparseable pushed messages instead of ending the session.
	SkipMalformed bool
	// MaxPollFailures ends a pull session after that many consecutive
	// failures. Zero retries forever.
	MaxPollFailures int
	// Now overrides the clock used for elapsed-time labels.
	Now func() time.Time
}

// State is the observable output of a Subscriber.
type State struct {
	Entries []format.LogEntry
	Active  bool
	Epoch   uint64
	// Err is set when the session ended on a transport failure.
	Err error
}

// Observer receives the subscriber state after every mutation. Updates are
// delivered one at a time with no subscriber lock held, so observers may read
// State, Locator or Done. They must not call Subscribe, Unsubscribe or Wait
// synchronously: those wait for the delivery in progress.
type Observer interface {
	Update(State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(State)

// Update calls f(st).
func (f ObserverFunc) Update(st State) { f(st) }

// sink receives event batches from a transport session. Deliver reports
// false once the session must stop.
type sink interface {
	Deliver(batch []events.RawEvent) bool
}

type transport interface {
	Run(ctx context.Context, locator string, out sink) error
}

// Subscriber consumes one job feed at a time.
type Subscriber struct {
	mode      string
	transport transport
	formatter *format.Formatter
	now       func() time.Time

	mu      sync.Mutex
	epoch   uint64
	locator string
	entries []format.LogEntry
	active  bool
	err     error
	origin  time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	// ended is closed once observers have seen the epoch end.
	ended   chan struct{}

	observers map[uint64]Observer
	nextObs   uint64

	// Deliveries run in ticket order; tickets are taken under mu.
	nextTicket uint64
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	turn       uint64
}

// New builds a Subscriber.
func New(opts Options) (*Subscriber, error) {
	mode := opts.Transport
	if mode == "" {
		mode = TransportPush
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	var tr transport
	switch mode {
	case TransportPush:
		tr = &pushTransport{client: client, header: opts.Header, skipMalformed: opts.SkipMalformed}
	case TransportPull:
		interval := opts.PollInterval
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		tr = &pullTransport{client: client, header: opts.Header, interval: interval, maxFailures: opts.MaxPollFailures}
	default:
		return nil, fmt.Errorf("unsupported transport %q (want %s or %s)", mode, TransportPush, TransportPull)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	done := make(chan struct{})
	close(done)
	s := &Subscriber{
		mode:      mode,
		transport: tr,
		formatter: format.New(opts.Registry, opts.FormatEvent),
		now:       now,
		done:      done,
		observers: make(map[uint64]Observer),
	}
	s.notifyCond = sync.NewCond(&s.notifyMu)
	return s, nil
}

// Subscribe starts following locator, tearing down any current session
// first. An empty locator only tears down. The session lives until a
// terminal event, a fatal transport error, Unsubscribe, a new Subscribe, or
// cancellation of ctx.
func (s *Subscriber) Subscribe(ctx context.Context, locator string) {
	s.mu.Lock()
	if s.active {
		s.finishLocked(nil, "superseded")
	}
	if locator == "" {
		s.locator = ""
		s.unlockAndNotify()
		return
	}

	s.epoch++
	epoch := s.epoch
	s.locator = locator
	s.entries = []format.LogEntry{}
	s.active = true
	s.err = nil
	s.origin = s.now()
	s.done = make(chan struct{})
	sessCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.unlockAndNotify()

	logutil.Info("logstream_session_started", map[string]interface{}{
		"locator":   locator,
		"transport": s.mode,
		"epoch":     epoch,
	})
	go s.run(sessCtx, epoch, locator)
}

// Unsubscribe ends the current session cleanly.
func (s *Subscriber) Unsubscribe() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.finishLocked(nil, "unsubscribed")
	s.locator = ""
	s.unlockAndNotify()
}

// State returns the current state. The returned entries must not be modified.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Locator returns the feed currently followed, or "".
func (s *Subscriber) Locator() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locator
}

// Done is closed when the current epoch stops being active, after
// observers have been given the final state.
func (s *Subscriber) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the current epoch ends or ctx is cancelled and returns
// the state at that point.
func (s *Subscriber) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.Done():
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Watch registers an observer. It is immediately given the current state.
// The returned func unregisters it.
func (s *Subscriber) Watch(obs Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	st := s.stateLocked()
	ticket := s.ticketLocked()
	s.mu.Unlock()
	s.inTurn(ticket, func() { obs.Update(st) })

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Subscriber) run(ctx context.Context, epoch uint64, locator string) {
	err := s.transport.Run(ctx, locator, session{sub: s, epoch: epoch})

	s.mu.Lock()
	if epoch != s.epoch || !s.active {
		s.mu.Unlock()
		return
	}
	reason := "error"
	switch {
	case ctx.Err() != nil:
		// The caller's context ended: a detach, not a failure.
		err = nil
		reason = "detached"
	case err == nil:
		err = ErrStreamClosed
	}
	if err != nil {
		logutil.Error("logstream_session_failed", err, map[string]interface{}{
			"locator":   locator,
			"transport": s.mode,
			"epoch":     epoch,
		})
	}
	s.finishLocked(err, reason)
	s.unlockAndNotify()
}

// deliver applies a batch received under epoch.
func (s *Subscriber) deliver(epoch uint64, batch []events.RawEvent) bool {
	s.mu.Lock()
	if epoch != s.epoch || !s.active {
		s.mu.Unlock()
		return false
	}
	elapsed := s.now().Sub(s.origin).Seconds()
	appended := 0
	terminal := false
	for _, raw := range batch {
		if raw.IsTerminal() {
			terminal = true
			break
		}
		entry, ok := s.formatter.Format(raw, elapsed)
		if !ok {
			continue
		}
		s.entries = append(s.entries, entry)
		appended++
	}
	if appended > 0 {
		metrics.ObserveEntries(s.mode, appended)
	}
	if terminal {
		s.finishLocked(nil, "done")
	}
	if appended == 0 && !terminal {
		s.mu.Unlock()
		return true
	}
	s.unlockAndNotify()
	return !terminal
}

func (s *Subscriber) finishLocked(err error, reason string) {
	s.active = false
	s.err = err
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.ended = s.done
	metrics.ObserveSessionEnd(s.mode, reason)
}

func (s *Subscriber) stateLocked() State {
	n := len(s.entries)
	return State{
		// Capped so that later appends never show through a handed-out slice.
		Entries: s.entries[:n:n],
		Active:  s.active,
		Epoch:   s.epoch,
		Err:     s.err,
	}
}

// unlockAndNotify releases s.mu and delivers the new state to observers.
func (s *Subscriber) unlockAndNotify() {
	st := s.stateLocked()
	observers := make([]Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	ended := s.ended
	s.ended = nil
	ticket := s.ticketLocked()
	s.mu.Unlock()
	s.inTurn(ticket, func() {
		for _, obs := range observers {
			obs.Update(st)
		}
		if ended != nil {
			close(ended)
		}
	})
}

func (s *Subscriber) ticketLocked() uint64 {
	t := s.nextTicket
	s.nextTicket++
	return t
}

// inTurn runs fn once every earlier ticket has been delivered.
func (s *Subscriber) inTurn(ticket uint64, fn func()) {
	s.notifyMu.Lock()
	for s.turn != ticket {
		s.notifyCond.Wait()
	}
	s.notifyMu.Unlock()

	defer func() {
		s.notifyMu.Lock()
		s.turn++
		s.notifyCond.Broadcast()
		s.notifyMu.Unlock()
	}()
	fn()
}

type session struct {
	sub   *Subscriber
	epoch uint64
}

func (ss session) Deliver(batch []events.RawEvent) bool {
	return ss.sub.deliver(ss.epoch, batch)
}
