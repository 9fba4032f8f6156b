package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/events"
	_ "modernc.org/sqlite"
)

// JobStatus represents the lifecycle state of a logged job.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "completed"
	JobFailed  JobStatus = "failed"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("job not found")

// Job is the persisted header of a job log.
type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store wraps the SQLite database used for job log persistence.
type Store struct {
	db *sql.DB
}

// Open initializes the datastore using the supplied DSN/file path and driver.
func Open(dsn string, driver string) (*Store, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if driver != "sqlite" {
		return nil, fmt.Errorf("unsupported datastore driver: %s", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("datastore DSN is required")
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create datastore directory: %w", err)
	}
	conn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dsn)
	db, err := sql.Open("sqlite", conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite datastore: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(updated_at);`,
		`CREATE TABLE IF NOT EXISTS job_events (
			job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (job_id, seq)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
	}
	return nil
}

// Close shuts down the datastore.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateJob inserts a job record. Creating an existing job is a no-op.
func (s *Store) CreateJob(job *Job) error {
	if job.ID == "" {
		return errors.New("job id required")
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobRunning
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO jobs (id, type, status, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.Status, job.Message, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// UpdateJobStatus sets the status and message of a job.
func (s *Store) UpdateJobStatus(id string, status JobStatus, message string) error {
	res, err := s.db.Exec(`UPDATE jobs SET status=?, message=?, updated_at=? WHERE id=?`,
		status, message, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob loads a job by ID.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT id, type, status, message, created_at, updated_at FROM jobs WHERE id=?`, id)
	var (
		job     Job
		message sql.NullString
	)
	if err := row.Scan(&job.ID, &job.Type, &job.Status, &message, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.Message = message.String
	return &job, nil
}

// ListJobs returns recent jobs sorted from newest to oldest.
func (s *Store) ListJobs(limit int) ([]Job, error) {
	query := `SELECT id, type, status, message, created_at, updated_at FROM jobs ORDER BY created_at DESC`
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		var j Job
		var message sql.NullString
		if err := rows.Scan(&j.ID, &j.Type, &j.Status, &message, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.Message = message.String
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// AppendEvent stores evt at the end of the job's log and returns its sequence number.
func (s *Store) AppendEvent(jobID string, evt events.RawEvent) (int, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	var seq int
	err = s.db.QueryRow(`INSERT INTO job_events (job_id, seq, payload, created_at)
		SELECT ?, COALESCE(MAX(seq) + 1, 0), ?, ? FROM job_events WHERE job_id = ?
		RETURNING seq`,
		jobID, string(payload), now, jobID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append event for job %s: %w", jobID, err)
	}
	if _, err := s.db.Exec(`UPDATE jobs SET updated_at=? WHERE id=?`, now, jobID); err != nil {
		return seq, err
	}
	return seq, nil
}

// ListEvents returns the full ordered log of a job.
func (s *Store) ListEvents(jobID string) ([]events.RawEvent, error) {
	rows, err := s.db.Query(`SELECT payload FROM job_events WHERE job_id=? ORDER BY seq ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []events.RawEvent{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var evt events.RawEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return nil, fmt.Errorf("decode event for job %s: %w", jobID, err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// PruneBefore deletes jobs (and their events) not updated since cutoff.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	if _, err := s.db.Exec(`DELETE FROM job_events WHERE job_id IN (SELECT id FROM jobs WHERE updated_at < ?)`, cutoff.UTC()); err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`DELETE FROM jobs WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
