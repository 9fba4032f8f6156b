package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is one sequenced event of a job, as fanned out to live readers.
// Seq is the zero-based position of the event in the job's history.
type Message struct {
	JobID  string   `json:"jobId"`
	Seq    int      `json:"seq"`
	Event  RawEvent `json:"event"`
	Origin string   `json:"origin,omitempty"`
}

// Bus multiplexes job events to connected readers (local + Redis backed).
type Bus struct {
	client redis.UniversalClient
	logger *log.Logger
	ch     string
	id     string
	cancel context.CancelFunc

	mu          sync.RWMutex
	subscribers map[chan Message]string
}

// Options configure the bus.
type Options struct {
	Client  redis.UniversalClient
	Logger  *log.Logger
	Channel string
}

// NewBus creates a new event bus. When a Redis client is supplied, messages
// published by other processes on the same channel are delivered locally too.
func NewBus(opts Options) *Bus {
	channel := opts.Channel
	if channel == "" {
		channel = "logstream-events"
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		client:      opts.Client,
		logger:      opts.Logger,
		ch:          channel,
		id:          uuid.NewString(),
		cancel:      cancel,
		subscribers: make(map[chan Message]string),
	}
	if bus.client != nil {
		go bus.observeRedis(ctx)
	}
	return bus
}

// Publish broadcasts a job event to local subscribers and Redis.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	msg.Origin = b.id
	if b.client != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.client.Publish(ctx, b.ch, payload).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
	}

	b.broadcast(msg)
	return nil
}

// Subscribe registers a reader for one job and returns a channel plus a cancel func.
func (b *Bus) Subscribe(ctx context.Context, jobID string) (<-chan Message, func()) {
	ch := make(chan Message, 256)
	b.mu.Lock()
	b.subscribers[ch] = jobID
	b.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subscribers[ch]; ok {
				delete(b.subscribers, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, release)

	return ch, func() {
		stop()
		release()
	}
}

// Close stops the Redis observer.
func (b *Bus) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bus) broadcast(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, jobID := range b.subscribers {
		if jobID != msg.JobID {
			continue
		}
		select {
		case ch <- msg:
		default:
			// Readers detect the sequence gap and catch up from the store.
			if b.logger != nil {
				b.logger.Printf("events: dropping event %s#%d (subscriber backlog)", msg.JobID, msg.Seq)
			}
		}
	}
}

func (b *Bus) observeRedis(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, b.ch)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if b.logger != nil {
				b.logger.Printf("events: redis subscriber error: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		var evt Message
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			if b.logger != nil {
				b.logger.Printf("events: invalid payload: %v", err)
			}
			continue
		}
		if evt.Origin == b.id {
			continue
		}
		b.broadcast(evt)
	}
}
