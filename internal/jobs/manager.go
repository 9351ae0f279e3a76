package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muhammadegaa/reely/internal/logger"
	"github.com/muhammadegaa/reely/internal/pipeline"
	"github.com/muhammadegaa/reely/internal/util"
)

// Sentinel errors the HTTP layer maps onto status codes.
var (
	ErrNotFound        = errors.New("job not found")
	ErrAlreadyTerminal = errors.New("job already terminal")
	ErrQueueFull       = errors.New("owner queue is full")
	ErrInvalidInput    = errors.New("invalid input")
)

// Store defines the persistence interface for job records.
// Implemented by internal/store.SQLiteStore.
type Store interface {
	SaveJob(job *Job) error
	GetJob(id string) (*Job, error)
	DeleteJob(id string) error
	LoadJobs() ([]*Job, error)
	MarkInterrupted() (int, error)
	Close() error
}

// Options tunes manager behavior.
type Options struct {
	// WorkRoot is the directory job artifact dirs are created under.
	WorkRoot string
	// MaxQueuedPerOwner bounds an owner's queued backlog; submits beyond it
	// fail with ErrQueueFull.
	MaxQueuedPerOwner int
	// MaxClipSecs bounds the requested trim window length.
	MaxClipSecs float64
}

// Manager owns the job table. It is the only writer of job records; callers
// receive snapshots.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string // Job IDs in creation order
	pending []string // Queued job IDs, FIFO
	cancels map[string]context.CancelFunc

	gate  *Gate
	defs  map[pipeline.Kind]*pipeline.Definition
	store Store // nil = in-memory only
	opts  Options

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	subsMu      sync.RWMutex
	subscribers map[chan JobEvent]struct{}
}

// NewManager creates a manager. Terminal records already in the store are
// loaded so callers can still poll them after a restart.
func NewManager(defs map[pipeline.Kind]*pipeline.Definition, gate *Gate, store Store, opts Options) (*Manager, error) {
	if opts.WorkRoot == "" {
		return nil, fmt.Errorf("work root required")
	}
	if opts.MaxQueuedPerOwner <= 0 {
		opts.MaxQueuedPerOwner = 10
	}
	if err := os.MkdirAll(opts.WorkRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}

	baseCtx, stop := context.WithCancel(context.Background())
	m := &Manager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		gate:        gate,
		defs:        defs,
		store:       store,
		opts:        opts,
		baseCtx:     baseCtx,
		stop:        stop,
		subscribers: make(map[chan JobEvent]struct{}),
	}

	if store != nil {
		loaded, err := store.LoadJobs()
		if err != nil {
			stop()
			return nil, fmt.Errorf("load jobs from store: %w", err)
		}
		for _, job := range loaded {
			m.jobs[job.ID] = job
			m.order = append(m.order, job.ID)
		}
	}

	return m, nil
}

// Submit validates the request, creates a queued job, and schedules it.
// Never blocks on pipeline execution.
func (m *Manager) Submit(owner string, req pipeline.Request) (*Job, error) {
	if err := m.validate(req); err != nil {
		return nil, err
	}

	m.mu.Lock()

	queued := 0
	for _, id := range m.pending {
		if m.jobs[id].Owner == owner {
			queued++
		}
	}
	if queued >= m.opts.MaxQueuedPerOwner {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d jobs queued", ErrQueueFull, queued)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Owner:     owner,
		Kind:      req.Kind,
		Input:     req,
		Status:    StatusQueued,
		Message:   "Waiting for a worker slot",
		CreatedAt: time.Now(),
	}
	job.WorkDir = filepath.Join(m.opts.WorkRoot, job.ID)

	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.pending = append(m.pending, job.ID)
	m.persist(job)

	snapshot := job.Copy()
	m.mu.Unlock()

	m.broadcast(JobEvent{Type: "queued", Job: snapshot})
	logger.Info("Job submitted", "job_id", job.ID, "kind", req.Kind, "owner", owner)

	m.trySchedule()
	return snapshot, nil
}

// validate checks input shape. Failures here reject synchronously; no job
// record is created.
func (m *Manager) validate(req pipeline.Request) error {
	if !pipeline.ValidKind(req.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, req.Kind)
	}
	if req.Source == "" {
		return fmt.Errorf("%w: source required", ErrInvalidInput)
	}
	if req.Kind == pipeline.KindTrim {
		if req.StartSecs < 0 {
			return fmt.Errorf("%w: start must be >= 0", ErrInvalidInput)
		}
		if req.EndSecs <= req.StartSecs {
			return fmt.Errorf("%w: end must be greater than start", ErrInvalidInput)
		}
		if m.opts.MaxClipSecs > 0 && req.EndSecs-req.StartSecs > m.opts.MaxClipSecs {
			return fmt.Errorf("%w: clip longer than %.0fs limit", ErrInvalidInput, m.opts.MaxClipSecs)
		}
	}
	switch req.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("%w: unknown ai provider %q", ErrInvalidInput, req.Provider)
	}
	return nil
}

// Get returns a snapshot of the job with a freshly computed ETA.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := job.Copy()
	if snapshot.Status == StatusRunning && snapshot.StartedAt != nil {
		snapshot.ETASeconds = etaSeconds(time.Since(*snapshot.StartedAt), snapshot.Progress)
	}
	return snapshot, nil
}

// List returns snapshots of all jobs in creation order.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Job, 0, len(m.order))
	for _, id := range m.order {
		if job, ok := m.jobs[id]; ok {
			out = append(out, job.Copy())
		}
	}
	return out
}

// Cancel requests a stop. Queued jobs transition directly to cancelled;
// running jobs get their context cancelled and finish asynchronously. If the
// pipeline finishes first, last-write-wins and that is not an error.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()

	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if job.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, job.Status)
	}

	job.CancelRequested = true

	if job.Status == StatusQueued {
		// No stage ever started; finish here.
		m.removePending(id)
		m.finishLocked(job, StatusCancelled, nil, nil)
		snapshot := job.Copy()
		m.mu.Unlock()
		m.broadcast(JobEvent{Type: "cancelled", Job: snapshot})
		m.trySchedule()
		return nil
	}

	cancel := m.cancels[id]
	m.persist(job)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	logger.Info("Job cancel requested", "job_id", id)
	return nil
}

// Release deletes a terminal job's record and artifacts immediately.
func (m *Manager) Release(id string) error {
	m.mu.Lock()

	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if !job.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("job still %s: %w", job.Status, ErrAlreadyTerminal)
	}

	m.detachLocked(job)
	m.mu.Unlock()

	m.purge(job)
	m.broadcast(JobEvent{Type: "released", Job: &Job{ID: id}})
	return nil
}

// Stats returns job counts by status.
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats Stats
	for _, job := range m.jobs {
		stats.Total++
		switch job.Status {
		case StatusQueued:
			stats.Queued++
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Shutdown cancels all running work and waits for workers to finish, up to
// ctx's deadline.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySchedule promotes queued jobs whose owner and the process have slot
// headroom. FIFO within the pending list; a blocked owner does not starve
// other owners behind it.
func (m *Manager) trySchedule() {
	m.mu.Lock()

	var started []*Job
	remaining := m.pending[:0]
	for _, id := range m.pending {
		job, ok := m.jobs[id]
		if !ok {
			continue
		}
		if !m.gate.TryAcquire(job.Owner) {
			remaining = append(remaining, id)
			continue
		}
		now := time.Now()
		job.Status = StatusRunning
		job.StartedAt = &now
		job.Message = "Starting"
		m.persist(job)
		started = append(started, job)
	}
	m.pending = remaining

	snapshots := make([]*Job, len(started))
	for i, job := range started {
		snapshots[i] = job.Copy()
	}
	m.mu.Unlock()

	for i, job := range started {
		m.broadcast(JobEvent{Type: "started", Job: snapshots[i]})
		m.wg.Add(1)
		go m.runJob(job.ID)
	}
}

// runJob drives one job's pipeline on its own worker goroutine.
func (m *Manager) runJob(id string) {
	defer m.wg.Done()

	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	owner := job.Owner
	def := m.defs[job.Kind]
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.cancels[id] = cancel
	cancelRequested := job.CancelRequested
	exec := &pipeline.Execution{Request: job.Input, WorkDir: job.WorkDir}
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.cancels, id)
		m.mu.Unlock()
		m.gate.Release(owner)
		m.trySchedule()
	}()

	// A cancel that landed between scheduling and the registration above had
	// no context to cancel; it only set the flag.
	if cancelRequested {
		m.finishJob(id, StatusCancelled, nil, nil)
		return
	}

	if err := os.MkdirAll(exec.WorkDir, 0o755); err != nil {
		m.finishJob(id, StatusFailed, nil, &JobError{
			Kind:   pipeline.KindInternal,
			Detail: "could not create working directory",
		})
		return
	}

	runErr := def.Run(ctx, exec, func(u pipeline.ProgressUpdate) {
		m.updateProgress(id, u)
	})

	if runErr == nil {
		m.finishJob(id, StatusCompleted, &exec.Result, nil)
		return
	}

	m.mu.RLock()
	cancelRequested = job.CancelRequested
	m.mu.RUnlock()

	var stageErr *pipeline.StageError
	switch {
	case cancelRequested:
		// Caller-initiated stop wins over whatever the abort surfaced as.
		m.finishJob(id, StatusCancelled, nil, nil)
	case errors.As(runErr, &stageErr):
		m.finishJob(id, StatusFailed, nil, &JobError{Kind: stageErr.Kind, Detail: stageErr.Detail})
	case errors.Is(runErr, context.Canceled):
		// Base context cancelled: process shutdown.
		m.finishJob(id, StatusFailed, nil, &JobError{
			Kind:   pipeline.KindInternal,
			Detail: "interrupted by shutdown",
		})
	default:
		m.finishJob(id, StatusFailed, nil, &JobError{
			Kind:   pipeline.KindInternal,
			Detail: runErr.Error(),
		})
	}
}

// updateProgress applies a stage progress report. Values clamp to be
// monotonically non-decreasing even under report races.
func (m *Manager) updateProgress(id string, u pipeline.ProgressUpdate) {
	m.mu.Lock()

	job, ok := m.jobs[id]
	if !ok || job.Status != StatusRunning {
		m.mu.Unlock()
		return
	}

	job.Stage = u.Stage
	job.Message = stageMessage(u.Stage)
	if u.Percent > job.Progress {
		job.Progress = u.Percent
	}

	// Progress ticks are broadcast but never persisted; the store only sees
	// state transitions.
	snapshot := job.Copy()
	m.mu.Unlock()

	m.broadcast(JobEvent{Type: "progress", Job: snapshot})
}

// finishJob applies the single terminal transition for a job.
func (m *Manager) finishJob(id string, status Status, result *pipeline.Result, jobErr *JobError) {
	m.mu.Lock()

	job, ok := m.jobs[id]
	if !ok || job.IsTerminal() {
		m.mu.Unlock()
		return
	}

	m.finishLocked(job, status, result, jobErr)
	snapshot := job.Copy()
	m.mu.Unlock()

	m.broadcast(JobEvent{Type: string(status), Job: snapshot})

	switch status {
	case StatusCompleted:
		var elapsed time.Duration
		if snapshot.StartedAt != nil && snapshot.FinishedAt != nil {
			elapsed = snapshot.FinishedAt.Sub(*snapshot.StartedAt)
		}
		logger.Info("Job completed", "job_id", id, "kind", snapshot.Kind,
			"elapsed", util.FormatDuration(elapsed))
	case StatusFailed:
		logger.Warn("Job failed", "job_id", id, "kind", jobErr.Kind, "detail", jobErr.Detail)
	case StatusCancelled:
		logger.Info("Job cancelled", "job_id", id)
	}
}

// finishLocked writes the terminal fields. Caller holds the lock.
// FinishedAt is set exactly once; re-entry is a no-op via the terminal
// check in finishJob/Cancel.
func (m *Manager) finishLocked(job *Job, status Status, result *pipeline.Result, jobErr *JobError) {
	now := time.Now()
	job.Status = status
	job.Stage = ""
	job.FinishedAt = &now
	job.Result = result
	job.Error = jobErr

	switch status {
	case StatusCompleted:
		job.Progress = 100
		job.Message = "Completed"
	case StatusFailed:
		job.Message = jobErr.Detail
	case StatusCancelled:
		job.Message = "Cancelled by caller"
	}

	// Failed and cancelled jobs keep no artifacts; only completed output
	// survives until release or sweep.
	if status != StatusCompleted && job.WorkDir != "" {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			logger.Warn("Failed to remove job artifacts", "job_id", job.ID, "error", err)
		}
	}

	m.persist(job)
}

// detachLocked removes a job from the in-memory table. Caller holds the
// lock and must purge the detached record afterwards.
func (m *Manager) detachLocked(job *Job) {
	delete(m.jobs, job.ID)
	for i, oid := range m.order {
		if oid == job.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// purge removes a detached job's artifacts and store row. Runs without the
// lock; removing an already-removed target is a no-op.
func (m *Manager) purge(job *Job) {
	if job.WorkDir != "" {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			logger.Warn("Failed to remove job artifacts", "job_id", job.ID, "error", err)
		}
	}
	if m.store != nil {
		if err := m.store.DeleteJob(job.ID); err != nil {
			logger.Warn("Failed to delete job from store", "job_id", job.ID, "error", err)
		}
	}
}

// removePending drops an id from the pending list. Caller holds the lock.
func (m *Manager) removePending(id string) {
	for i, pid := range m.pending {
		if pid == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// persist saves a job to the store (if configured). Called with lock held.
func (m *Manager) persist(job *Job) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveJob(job); err != nil {
		logger.Warn("Failed to persist job", "job_id", job.ID, "error", err)
	}
}

// stageMessage maps a stage name to its status line.
func stageMessage(stage string) string {
	switch stage {
	case "download":
		return "Downloading source video"
	case "extract":
		return "Extracting audio segment"
	case "transcribe":
		return "Transcribing audio"
	case "analyze":
		return "Analyzing transcript for hooks"
	case "transcode":
		return "Rendering clip"
	default:
		return "Processing"
	}
}

// Subscribe returns a channel that receives job events
func (m *Manager) Subscribe() chan JobEvent {
	ch := make(chan JobEvent, 100)

	m.subsMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription
func (m *Manager) Unsubscribe(ch chan JobEvent) {
	m.subsMu.Lock()
	delete(m.subscribers, ch)
	m.subsMu.Unlock()

	close(ch)
}

// broadcast sends an event to all subscribers
func (m *Manager) broadcast(event JobEvent) {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}
