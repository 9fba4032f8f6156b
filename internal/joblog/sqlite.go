package joblog

import (
	"context"
	"errors"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/logutil"
	"github.com/oremus-labs/ol-logstream/internal/store"
)

// SQLiteStore persists logs in the SQLite datastore.
type SQLiteStore struct {
	db *store.Store
}

// OpenSQLite opens (or creates) the SQLite datastore at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := store.Open(path, "sqlite")
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(_ context.Context, jobID, jobType string) error {
	return s.db.CreateJob(&store.Job{ID: jobID, Type: jobType, Status: store.JobRunning})
}

// Append implements Store. An error-level event marks the job failed; a
// terminal event completes a job that has not failed. Once the event is stored
// a failed status update is only logged, so the event is still published.
func (s *SQLiteStore) Append(_ context.Context, jobID string, evt events.RawEvent) (int, error) {
	job, err := s.db.GetJob(jobID)
	if err != nil {
		return 0, translate(err)
	}
	seq, err := s.db.AppendEvent(jobID, evt)
	if err != nil {
		return 0, err
	}

	var status store.JobStatus
	var message string
	switch {
	case evt.IsTerminal() && job.Status == store.JobRunning:
		status = store.JobDone
	case evt.LevelOrDefault() == "error":
		status = store.JobFailed
		message, _ = evt.MessageText()
	default:
		return seq, nil
	}
	if err := s.db.UpdateJobStatus(jobID, status, message); err != nil {
		logutil.Warn("joblog_status_update_failed", map[string]interface{}{
			"jobId":  jobID,
			"seq":    seq,
			"status": string(status),
			"error":  err.Error(),
		})
	}
	return seq, nil
}

// Snapshot implements Store.
func (s *SQLiteStore) Snapshot(_ context.Context, jobID string) ([]events.RawEvent, error) {
	if _, err := s.db.GetJob(jobID); err != nil {
		return nil, translate(err)
	}
	return s.db.ListEvents(jobID)
}

// Prune implements Pruner.
func (s *SQLiteStore) Prune(_ context.Context, before time.Time) (int64, error) {
	return s.db.PruneBefore(before)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func translate(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
