// Package jobs owns the job table and its lifecycle: admission through the
// quota gate, per-job pipeline workers, progress tracking, cancellation,
// and retention sweeping.
package jobs

import (
	"time"

	"github.com/muhammadegaa/reely/internal/pipeline"
)

// Status represents the current state of a job
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// JobError is the classified failure surfaced to callers. Detail is a
// human-readable diagnostic, never raw subprocess output as the primary
// signal.
type JobError struct {
	Kind   pipeline.ErrorKind `json:"kind"`
	Detail string             `json:"detail"`
}

// Job represents one request through the pipeline
type Job struct {
	ID              string            `json:"id"`
	Owner           string            `json:"owner"`
	Kind            pipeline.Kind     `json:"kind"`
	Input           pipeline.Request  `json:"input"`
	Status          Status            `json:"status"`
	Stage           string            `json:"stage,omitempty"` // Set only while running
	Progress        float64           `json:"progress"`        // 0-100, never decreases
	Message         string            `json:"message,omitempty"`
	ETASeconds      *float64          `json:"eta_seconds,omitempty"` // Computed on snapshot
	Result          *pipeline.Result  `json:"result,omitempty"`
	Error           *JobError         `json:"error,omitempty"`
	CancelRequested bool              `json:"cancel_requested"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`

	// WorkDir holds the job's artifacts until release or sweep.
	WorkDir string `json:"-"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// Copy returns a snapshot safe to hand to callers. The live record never
// escapes the manager.
func (j *Job) Copy() *Job {
	c := *j
	if j.Result != nil {
		result := *j.Result
		if j.Result.Hooks != nil {
			result.Hooks = append([]pipeline.Hook(nil), j.Result.Hooks...)
		}
		c.Result = &result
	}
	if j.Error != nil {
		jobErr := *j.Error
		c.Error = &jobErr
	}
	if j.ETASeconds != nil {
		eta := *j.ETASeconds
		c.ETASeconds = &eta
	}
	if j.StartedAt != nil {
		started := *j.StartedAt
		c.StartedAt = &started
	}
	if j.FinishedAt != nil {
		finished := *j.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}

// JobEvent represents an event for SSE streaming
type JobEvent struct {
	Type string `json:"type"` // "queued", "started", "progress", "completed", "failed", "cancelled", "released"
	Job  *Job   `json:"job"`
}
