package jobs

import (
	"context"
	"time"

	"github.com/muhammadegaa/reely/internal/logger"
)

// Sweeper periodically deletes terminal jobs whose retention window has
// passed, together with their artifacts. Completed jobs keep their output
// longer than failed or cancelled records keep their metadata.
type Sweeper struct {
	manager         *Manager
	interval        time.Duration
	resultRetention time.Duration
	failedRetention time.Duration
}

// NewSweeper creates a sweeper over the manager's job table.
func NewSweeper(manager *Manager, interval, resultRetention, failedRetention time.Duration) *Sweeper {
	return &Sweeper{
		manager:         manager,
		interval:        interval,
		resultRetention: resultRetention,
		failedRetention: failedRetention,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(time.Now()); n > 0 {
				logger.Info("Swept expired jobs", "count", n)
			}
		}
	}
}

// Sweep removes every terminal job whose retention expired as of now.
// Safe to run concurrently with Release on the same job: deleting an
// already-deleted record or artifact dir is a no-op.
func (s *Sweeper) Sweep(now time.Time) int {
	m := s.manager

	m.mu.Lock()
	var expired []*Job
	for _, id := range append([]string(nil), m.order...) {
		job, ok := m.jobs[id]
		if !ok || !job.IsTerminal() {
			continue
		}

		retention := s.failedRetention
		if job.Status == StatusCompleted {
			retention = s.resultRetention
		}
		if job.FinishedAt == nil || now.Sub(*job.FinishedAt) < retention {
			continue
		}

		m.detachLocked(job)
		expired = append(expired, job)
	}
	m.mu.Unlock()

	// Artifact and store deletes hit disk; they run outside the lock so
	// polls and submits never wait on sweeper I/O.
	for _, job := range expired {
		m.purge(job)
	}
	return len(expired)
}
