package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/joblog"
	"github.com/oremus-labs/ol-logstream/internal/jobs"
	"github.com/oremus-labs/ol-logstream/internal/queue"
)

type consumer interface {
	EnsureGroup(ctx context.Context) error
	Next(ctx context.Context) (*queue.Message, string, error)
	Ack(ctx context.Context, id string) error
}

type processor interface {
	Process(ctx context.Context, logger *joblog.Logger, req jobs.Request) error
}

// Options configure the background worker process.
type Options struct {
	Logs     *joblog.Manager
	Jobs     processor
	Consumer consumer
	Logger   *log.Logger
	Backoff  time.Duration
}

// Runner consumes queued demo jobs and writes their progress into job logs.
type Runner struct {
	logs     *joblog.Manager
	jobs     processor
	consumer consumer
	logger   *log.Logger
	backoff  time.Duration
}

// New creates a new Runner.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	return &Runner{
		logs:     opts.Logs,
		jobs:     opts.Jobs,
		consumer: opts.Consumer,
		logger:   opts.Logger,
		backoff:  opts.Backoff,
	}
}

// Run consumes jobs until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.consumer == nil || r.logs == nil || r.jobs == nil {
		return errors.New("worker not configured")
	}
	if err := r.consumer.EnsureGroup(ctx); err != nil {
		return err
	}
	r.logger.Println("logstream worker started, waiting for queued jobs")

	for {
		if ctx.Err() != nil {
			r.logger.Println("worker shutting down")
			return ctx.Err()
		}
		msg, id, err := r.consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Printf("worker: failed to read queue: %v", err)
			if id != "" {
				// Undecodable messages would otherwise be redelivered forever.
				_ = r.consumer.Ack(ctx, id)
				continue
			}
			r.sleep(ctx)
			continue
		}
		if msg == nil {
			continue
		}
		r.handle(ctx, msg)
		if err := r.consumer.Ack(ctx, id); err != nil {
			r.logger.Printf("worker: failed to ack %s: %v", id, err)
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg *queue.Message) {
	logger, err := r.logs.Attach(ctx, msg.JobID, jobs.JobType)
	if err != nil {
		r.logger.Printf("worker: failed to attach log for job %s: %v", msg.JobID, err)
		return
	}
	if err := r.jobs.Process(ctx, logger, msg.Request); err != nil {
		r.logger.Printf("worker: job %s ended with error: %v", msg.JobID, err)
	}
}

func (r *Runner) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.backoff):
	}
}
