package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/joblog"
	"github.com/oremus-labs/ol-logstream/internal/logutil"
	"github.com/oremus-labs/ol-logstream/internal/metrics"
)

// JobType identifies demo jobs in stores and metrics.
const JobType = "demo"

const (
	defaultSteps        = 5
	defaultStepInterval = time.Second
	maxSteps            = 1000
)

// Request describes a demo job run.
type Request struct {
	Steps          int `json:"steps,omitempty"`
	StepIntervalMs int `json:"stepIntervalMs,omitempty"`
}

type enqueuer interface {
	Enqueue(ctx context.Context, jobID string, req Request) error
}

// Manager starts demo jobs that write progress into a job log.
type Manager struct {
	logs         *joblog.Manager
	queue        enqueuer
	steps        int
	stepInterval time.Duration
}

// Options configures the job manager.
type Options struct {
	Logs         *joblog.Manager
	Queue        enqueuer
	Steps        int
	StepInterval time.Duration
}

// New creates a job manager. Without a queue, jobs run in-process.
func New(opts Options) *Manager {
	if opts.Steps <= 0 {
		opts.Steps = defaultSteps
	}
	if opts.StepInterval <= 0 {
		opts.StepInterval = defaultStepInterval
	}
	return &Manager{
		logs:         opts.Logs,
		queue:        opts.Queue,
		steps:        opts.Steps,
		stepInterval: opts.StepInterval,
	}
}

// Start creates the job log and schedules the job. It returns the log ID.
func (m *Manager) Start(ctx context.Context, req Request) (string, error) {
	if m.logs == nil {
		return "", fmt.Errorf("job manager not configured")
	}
	logger, err := m.logs.Start(ctx, JobType)
	if err != nil {
		return "", err
	}
	if m.queue != nil {
		if err := m.queue.Enqueue(ctx, logger.ID(), req); err != nil {
			_ = logger.Log(ctx, fmt.Sprintf("Failed to queue job: %v", err), "error")
			_ = logger.Close(ctx)
			return "", fmt.Errorf("enqueue job %s: %w", logger.ID(), err)
		}
		logger.Detach()
		return logger.ID(), nil
	}
	go func() {
		_ = m.Process(context.Background(), logger, req)
	}()
	return logger.ID(), nil
}

// Process runs the job synchronously (used by workers) and always closes the log.
func (m *Manager) Process(ctx context.Context, logger *joblog.Logger, req Request) error {
	steps, interval := m.resolve(req)
	start := time.Now()
	finalStatus := "failed"
	defer func() {
		metrics.ObserveJobCompletion(JobType, finalStatus, time.Since(start))
		// The log must end even if the job was cancelled.
		if err := logger.Close(context.Background()); err != nil {
			logutil.Error("job_log_close_failed", err, map[string]interface{}{"jobId": logger.ID()})
		}
	}()

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			_ = logger.Log(context.Background(), "Cancelled", "warning")
			logutil.Warn("job_cancelled", map[string]interface{}{
				"jobId": logger.ID(),
				"step":  i,
			})
			return ctx.Err()
		case <-time.After(interval):
		}
		if err := logger.Log(ctx, fmt.Sprintf("Step %d of %d", i, steps), "info"); err != nil {
			logutil.Error("job_log_append_failed", err, map[string]interface{}{"jobId": logger.ID()})
			return err
		}
	}
	if err := logger.Log(ctx, "Done", "success"); err != nil {
		return err
	}
	finalStatus = "success"
	logutil.Info("job_completed", map[string]interface{}{
		"jobId":    logger.ID(),
		"steps":    steps,
		"duration": time.Since(start).String(),
	})
	return nil
}

func (m *Manager) resolve(req Request) (int, time.Duration) {
	steps := req.Steps
	if steps <= 0 {
		steps = m.steps
	}
	if steps > maxSteps {
		steps = maxSteps
	}
	interval := time.Duration(req.StepIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = m.stepInterval
	}
	return steps, interval
}
