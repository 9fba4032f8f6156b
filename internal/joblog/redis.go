package joblog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 7 * 24 * time.Hour

// RedisStore keeps logs in Redis lists so that servers and workers share them.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOptions configure a RedisStore.
type RedisOptions struct {
	Client redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

// NewRedisStore constructs a Redis backed store.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("redis client required for redis job log store")
	}
	if opts.Prefix == "" {
		opts.Prefix = "logstream:job:"
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultRedisTTL
	}
	return &RedisStore{client: opts.Client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (s *RedisStore) metaKey(jobID string) string   { return s.prefix + jobID }
func (s *RedisStore) eventsKey(jobID string) string { return s.prefix + jobID + ":events" }

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, jobID, jobType string) error {
	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, s.metaKey(jobID), "type", jobType)
	pipe.HSetNX(ctx, s.metaKey(jobID), "createdAt", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, s.metaKey(jobID), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, jobID string, evt events.RawEvent) (int, error) {
	exists, err := s.client.Exists(ctx, s.metaKey(jobID)).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrNotFound
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return 0, err
	}
	pipe := s.client.TxPipeline()
	length := pipe.RPush(ctx, s.eventsKey(jobID), payload)
	pipe.Expire(ctx, s.eventsKey(jobID), s.ttl)
	pipe.Expire(ctx, s.metaKey(jobID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis append: %w", err)
	}
	return int(length.Val()) - 1, nil
}

// Snapshot implements Store.
func (s *RedisStore) Snapshot(ctx context.Context, jobID string) ([]events.RawEvent, error) {
	exists, err := s.client.Exists(ctx, s.metaKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}
	raw, err := s.client.LRange(ctx, s.eventsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]events.RawEvent, 0, len(raw))
	for _, item := range raw {
		var evt events.RawEvent
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			return nil, fmt.Errorf("decode event for job %s: %w", jobID, err)
		}
		out = append(out, evt)
	}
	return out, nil
}

// Close implements Store. The client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
