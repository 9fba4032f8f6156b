package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/ol-logstream/internal/jobs"
	"github.com/oremus-labs/ol-logstream/internal/redisx"
)

func TestProducerRequiresClient(t *testing.T) {
	t.Parallel()

	var p *Producer
	if err := p.Enqueue(context.Background(), "job", jobs.Request{}); err == nil {
		t.Fatal("expected error for unconfigured producer")
	}
	if _, _, err := NewConsumer(nil, "", "", "").Next(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured consumer")
	}
}

func TestRoundTripThroughRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := redisx.NewClient(redisx.Config{Addr: addr})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream := "logstream:test:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), stream) })

	producer := NewProducer(client, stream)
	consumer := NewConsumer(client, stream, "test-group", "test-consumer")
	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup should be idempotent: %v", err)
	}
	if err := producer.Enqueue(ctx, "job-1", jobs.Request{Steps: 3, StepIntervalMs: 10}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	msg, id, err := consumer.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg == nil || msg.JobID != "job-1" || msg.Request.Steps != 3 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if err := consumer.Ack(ctx, id); err != nil {
		t.Fatalf("Ack: %v", err)
	}
}
