// Package store persists job records in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/muhammadegaa/reely/internal/jobs"
	"github.com/muhammadegaa/reely/internal/pipeline"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	kind TEXT NOT NULL,
	input TEXT NOT NULL,
	status TEXT NOT NULL,
	progress REAL NOT NULL DEFAULT 0,
	message TEXT,
	error_kind TEXT,
	error_detail TEXT,
	result TEXT,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	work_dir TEXT,
	created_at TEXT NOT NULL,
	started_at TEXT,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

// SQLiteStore implements jobs.Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects concurrent access
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
// The database file is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// SaveJob persists a job using INSERT OR REPLACE.
func (s *SQLiteStore) SaveJob(job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	var result interface{}
	if job.Result != nil {
		encoded, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = string(encoded)
	}
	var errKind, errDetail interface{}
	if job.Error != nil {
		errKind = string(job.Error.Kind)
		errDetail = job.Error.Detail
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO jobs (
			id, owner, kind, input, status, progress, message,
			error_kind, error_detail, result, cancel_requested, work_dir,
			created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.Owner, string(job.Kind), string(input),
		string(job.Status), job.Progress, nullString(job.Message),
		errKind, errDetail, result, boolToInt(job.CancelRequested), nullString(job.WorkDir),
		formatTime(job.CreatedAt), formatTimePtr(job.StartedAt), formatTimePtr(job.FinishedAt),
	)
	return err
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, owner, kind, input, status, progress, message,
			error_kind, error_detail, result, cancel_requested, work_dir,
			created_at, started_at, finished_at
		FROM jobs WHERE id = ?
	`, id)

	return scanJob(row)
}

// DeleteJob removes a job by ID. Deleting an unknown id is a no-op.
func (s *SQLiteStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", id)
	return err
}

// LoadJobs returns all jobs in creation order.
func (s *SQLiteStore) LoadJobs() ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, owner, kind, input, status, progress, message,
			error_kind, error_detail, result, cancel_requested, work_dir,
			created_at, started_at, finished_at
		FROM jobs
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobList []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobList = append(jobList, job)
	}
	return jobList, rows.Err()
}

// MarkInterrupted fails every job a previous process left queued or running.
// The state machine forbids resuming; a restart creates new ids instead.
// Returns the number of jobs marked.
func (s *SQLiteStore) MarkInterrupted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, error_kind = ?, error_detail = ?, message = ?, finished_at = ?
		WHERE status IN (?, ?)
	`,
		string(jobs.StatusFailed), string(pipeline.KindInternal),
		"interrupted by restart", "interrupted by restart",
		formatTime(time.Now()),
		string(jobs.StatusQueued), string(jobs.StatusRunning),
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var kind, input, status string
	var message, errKind, errDetail, result, workDir sql.NullString
	var cancelRequested int
	var createdAt, startedAt, finishedAt sql.NullString

	err := row.Scan(
		&job.ID, &job.Owner, &kind, &input, &status, &job.Progress, &message,
		&errKind, &errDetail, &result, &cancelRequested, &workDir,
		&createdAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = pipeline.Kind(kind)
	job.Status = jobs.Status(status)
	job.Message = message.String
	job.CancelRequested = cancelRequested != 0
	job.WorkDir = workDir.String
	job.CreatedAt = parseTime(createdAt.String)
	job.StartedAt = parseTimePtr(startedAt.String)
	job.FinishedAt = parseTimePtr(finishedAt.String)

	if err := json.Unmarshal([]byte(input), &job.Input); err != nil {
		return nil, fmt.Errorf("decode input for job %s: %w", job.ID, err)
	}
	if result.Valid {
		job.Result = &pipeline.Result{}
		if err := json.Unmarshal([]byte(result.String), job.Result); err != nil {
			return nil, fmt.Errorf("decode result for job %s: %w", job.ID, err)
		}
	}
	if errKind.Valid {
		job.Error = &jobs.JobError{
			Kind:   pipeline.ErrorKind(errKind.String),
			Detail: errDetail.String,
		}
	}

	return &job, nil
}

// Helper functions for SQL values

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
