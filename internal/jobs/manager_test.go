package jobs

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muhammadegaa/reely/internal/pipeline"
)

// testStage is a controllable pipeline stage for manager tests.
type testStage struct {
	name  string
	run   func(ctx context.Context, exec *pipeline.Execution, report pipeline.ProgressFunc) error
	calls atomic.Int32
}

func (s *testStage) Name() string { return s.name }

func (s *testStage) Run(ctx context.Context, exec *pipeline.Execution, report pipeline.ProgressFunc) error {
	s.calls.Add(1)
	if s.run != nil {
		return s.run(ctx, exec, report)
	}
	report(1)
	return nil
}

func singleStageDefs(t *testing.T, kind pipeline.Kind, stage pipeline.Stage, timeout time.Duration) map[pipeline.Kind]*pipeline.Definition {
	t.Helper()
	def, err := pipeline.NewDefinition(kind, pipeline.WeightedStage{Stage: stage, Weight: 100, Timeout: timeout})
	if err != nil {
		t.Fatal(err)
	}
	return map[pipeline.Kind]*pipeline.Definition{kind: def}
}

func newTestManager(t *testing.T, defs map[pipeline.Kind]*pipeline.Definition, gate *Gate, opts Options) *Manager {
	t.Helper()
	if gate == nil {
		gate = NewGate(4, func(string) int { return 4 })
	}
	if opts.WorkRoot == "" {
		opts.WorkRoot = t.TempDir()
	}
	m, err := NewManager(defs, gate, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) *Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	if job, err := m.Get(id); err == nil {
		t.Fatalf("job %s stuck at %s, want %s", id, job.Status, want)
	}
	t.Fatalf("job %s disappeared while waiting for %s", id, want)
	return nil
}

func trimRequest() pipeline.Request {
	return pipeline.Request{Kind: pipeline.KindTrim, Source: "abc123", StartSecs: 30, EndSecs: 45}
}

func TestSubmitValidation(t *testing.T) {
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, &testStage{name: "noop"}, 0), nil, Options{MaxClipSecs: 300})

	bad := []pipeline.Request{
		{Kind: "explode", Source: "abc"},
		{Kind: pipeline.KindTrim, Source: "", StartSecs: 0, EndSecs: 10},
		{Kind: pipeline.KindTrim, Source: "abc", StartSecs: 10, EndSecs: 10},
		{Kind: pipeline.KindTrim, Source: "abc", StartSecs: -1, EndSecs: 10},
		{Kind: pipeline.KindTrim, Source: "abc", StartSecs: 0, EndSecs: 301},
		{Kind: pipeline.KindTrim, Source: "abc", StartSecs: 0, EndSecs: 10, Provider: "bard"},
	}
	for _, req := range bad {
		if _, err := m.Submit("alice", req); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Submit(%+v) = %v, want ErrInvalidInput", req, err)
		}
	}
	if got := len(m.List()); got != 0 {
		t.Errorf("rejected submits created %d job records", got)
	}
}

func TestTrimJobCompletes(t *testing.T) {
	stage := &testStage{name: "transcode", run: func(_ context.Context, exec *pipeline.Execution, report pipeline.ProgressFunc) error {
		report(0.5)
		exec.Result.OriginalDurationSecs = 90
		exec.Result.TrimmedDurationSecs = exec.Request.EndSecs - exec.Request.StartSecs
		exec.Result.OutputPath = exec.WorkDir + "/clip.mp4"
		report(1)
		return nil
	}}
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), nil, Options{})

	job, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	final := waitForStatus(t, m, job.ID, StatusCompleted)
	if final.Progress != 100 {
		t.Errorf("Progress = %v, want 100", final.Progress)
	}
	if final.Result == nil || final.Error != nil {
		t.Fatalf("terminal job must have exactly result set: result=%v error=%v", final.Result, final.Error)
	}
	if final.Result.TrimmedDurationSecs != 15 {
		t.Errorf("TrimmedDurationSecs = %v, want 15", final.Result.TrimmedDurationSecs)
	}
	if final.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if final.Stage != "" {
		t.Errorf("Stage = %q on terminal job, want empty", final.Stage)
	}
}

func TestProgressMonotonicAndETA(t *testing.T) {
	release := make(chan struct{})
	stage := &testStage{name: "download", run: func(ctx context.Context, _ *pipeline.Execution, report pipeline.ProgressFunc) error {
		report(0.6)
		report(0.4) // Late report must not regress stored progress
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		report(1)
		return nil
	}}
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), nil, Options{})

	job, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		snapshot, err := m.Get(job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if snapshot.Progress > 0 {
			if snapshot.Progress != 60 {
				t.Errorf("Progress = %v, want 60 (regression clamped)", snapshot.Progress)
			}
			if snapshot.ETASeconds == nil {
				t.Error("ETASeconds nil with positive progress")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no progress observed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	waitForStatus(t, m, job.ID, StatusCompleted)
}

func TestOwnerCapQueuesAndPromotes(t *testing.T) {
	release := make(chan struct{})
	stage := &testStage{name: "hold", run: func(ctx context.Context, _ *pipeline.Execution, report pipeline.ProgressFunc) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		report(1)
		return nil
	}}
	gate := NewGate(10, func(string) int { return 1 })
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), gate, Options{})

	first, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}

	waitForStatus(t, m, first.ID, StatusRunning)

	// The excess job queues; it is neither rejected nor running.
	snapshot, err := m.Get(second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Status != StatusQueued {
		t.Fatalf("second job status = %s, want queued", snapshot.Status)
	}

	// Finishing the first promotes the second without another submit call.
	close(release)
	waitForStatus(t, m, first.ID, StatusCompleted)
	waitForStatus(t, m, second.ID, StatusCompleted)
}

func TestCancelQueuedJobNeverRuns(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stage := &testStage{name: "hold", run: func(ctx context.Context, _ *pipeline.Execution, report pipeline.ProgressFunc) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		report(1)
		return nil
	}}
	gate := NewGate(10, func(string) int { return 1 })
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), gate, Options{})

	first, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, first.ID, StatusRunning)

	second, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Cancel(second.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	final := waitForStatus(t, m, second.ID, StatusCancelled)
	if final.Error != nil {
		t.Errorf("cancelled job has error %+v", final.Error)
	}
	if got := stage.calls.Load(); got != 1 {
		t.Errorf("stage ran %d times, want 1 (first job only)", got)
	}
}

func TestCancelRunningJob(t *testing.T) {
	stage := &testStage{name: "hold", run: func(ctx context.Context, _ *pipeline.Execution, _ pipeline.ProgressFunc) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), nil, Options{})

	job, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, job.ID, StatusRunning)

	if err := m.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	final := waitForStatus(t, m, job.ID, StatusCancelled)
	if final.Error != nil {
		t.Errorf("caller cancel reported as error: %+v", final.Error)
	}

	// A second cancel races against the terminal transition; either outcome
	// must be terminal-aware, not a crash.
	if err := m.Cancel(job.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("Cancel on terminal job = %v, want ErrAlreadyTerminal", err)
	}
}

func TestCancelImmediatelyAfterSubmit(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stage := &testStage{name: "hold", run: func(ctx context.Context, _ *pipeline.Execution, report pipeline.ProgressFunc) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		report(1)
		return nil
	}}
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), nil, Options{})

	// Submit schedules synchronously, so the cancel races the worker
	// goroutine's startup. Whichever side wins, the job must end cancelled,
	// never run to completion with the flag set.
	for i := 0; i < 25; i++ {
		job, err := m.Submit("alice", trimRequest())
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Cancel(job.ID); err != nil {
			t.Fatalf("Cancel: %v", err)
		}

		final := waitForStatus(t, m, job.ID, StatusCancelled)
		if final.Error != nil {
			t.Errorf("iteration %d: cancelled job has error %+v", i, final.Error)
		}
	}
}

func TestStageNameTracksExecution(t *testing.T) {
	release := make(chan struct{})
	first := &testStage{name: "download"}
	// The second stage reports nothing while it runs; its name must still be
	// visible to pollers the whole time it executes.
	second := &testStage{name: "transcribe", run: func(ctx context.Context, _ *pipeline.Execution, _ pipeline.ProgressFunc) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	def, err := pipeline.NewDefinition(pipeline.KindTrim,
		pipeline.WeightedStage{Stage: first, Weight: 40},
		pipeline.WeightedStage{Stage: second, Weight: 60},
	)
	if err != nil {
		t.Fatal(err)
	}
	m := newTestManager(t, map[pipeline.Kind]*pipeline.Definition{pipeline.KindTrim: def}, nil, Options{})

	job, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		snapshot, err := m.Get(job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if snapshot.Status == StatusRunning && snapshot.Stage == "transcribe" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stage stuck at %q while second stage executes", snapshot.Stage)
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	final := waitForStatus(t, m, job.ID, StatusCompleted)
	if final.Stage != "" {
		t.Errorf("terminal Stage = %q, want empty", final.Stage)
	}
}

func TestStageTimeoutFailsJob(t *testing.T) {
	stage := &testStage{name: "slow", run: func(ctx context.Context, exec *pipeline.Execution, _ pipeline.ProgressFunc) error {
		if err := os.WriteFile(exec.WorkDir+"/partial.bin", []byte("x"), 0o644); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 20*time.Millisecond), nil, Options{})

	job, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}

	final := waitForStatus(t, m, job.ID, StatusFailed)
	if final.Error == nil || final.Error.Kind != pipeline.KindTimeout {
		t.Fatalf("Error = %+v, want kind timeout", final.Error)
	}

	// The failed transition removes artifacts immediately.
	m.mu.RLock()
	workDir := m.jobs[job.ID].WorkDir
	m.mu.RUnlock()
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Errorf("artifacts survived failure: %v", err)
	}
}

func TestQueueDepthLimit(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stage := &testStage{name: "hold", run: func(ctx context.Context, _ *pipeline.Execution, report pipeline.ProgressFunc) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		report(1)
		return nil
	}}
	gate := NewGate(10, func(string) int { return 1 })
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), gate, Options{MaxQueuedPerOwner: 1})

	first, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, first.ID, StatusRunning)

	if _, err := m.Submit("alice", trimRequest()); err != nil {
		t.Fatalf("first queued submit rejected: %v", err)
	}
	if _, err := m.Submit("alice", trimRequest()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("over-depth submit = %v, want ErrQueueFull", err)
	}
	// Another owner has an independent queue.
	if _, err := m.Submit("bob", trimRequest()); err != nil {
		t.Errorf("other owner rejected: %v", err)
	}
}

func TestReleaseTerminalOnly(t *testing.T) {
	release := make(chan struct{})
	stage := &testStage{name: "hold", run: func(ctx context.Context, _ *pipeline.Execution, report pipeline.ProgressFunc) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		report(1)
		return nil
	}}
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), nil, Options{})

	job, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, job.ID, StatusRunning)

	if err := m.Release(job.ID); err == nil {
		t.Error("Release succeeded on a running job")
	}

	close(release)
	waitForStatus(t, m, job.ID, StatusCompleted)

	if err := m.Release(job.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := m.Get(job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after release = %v, want ErrNotFound", err)
	}
	if err := m.Release(job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Release = %v, want ErrNotFound", err)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, &testStage{name: "noop"}, 0), nil, Options{})
	if err := m.Cancel("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel = %v, want ErrNotFound", err)
	}
}

func TestSweeperRetentionClasses(t *testing.T) {
	stage := &testStage{name: "noop"}
	m := newTestManager(t, singleStageDefs(t, pipeline.KindTrim, stage, 0), nil, Options{})

	completed, err := m.Submit("alice", trimRequest())
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, completed.ID, StatusCompleted)

	failStage := &testStage{name: "boom", run: func(_ context.Context, _ *pipeline.Execution, _ pipeline.ProgressFunc) error {
		return errors.New("boom")
	}}
	failDef, err := pipeline.NewDefinition(pipeline.KindHookDetect,
		pipeline.WeightedStage{Stage: failStage, Weight: 100})
	if err != nil {
		t.Fatal(err)
	}
	m.mu.Lock()
	m.defs[pipeline.KindHookDetect] = failDef
	m.mu.Unlock()
	failed, err := m.Submit("alice", pipeline.Request{Kind: pipeline.KindHookDetect, Source: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, failed.ID, StatusFailed)

	// Both finished "10 minutes ago".
	past := time.Now().Add(-10 * time.Minute)
	m.mu.Lock()
	m.jobs[completed.ID].FinishedAt = &past
	m.jobs[failed.ID].FinishedAt = &past
	completedWorkDir := m.jobs[completed.ID].WorkDir
	m.mu.Unlock()

	sweeper := NewSweeper(m, time.Minute, time.Hour, 5*time.Minute)

	// Only the failed record is past its (shorter) retention.
	if n := sweeper.Sweep(time.Now()); n != 1 {
		t.Fatalf("first sweep removed %d, want 1", n)
	}
	if _, err := m.Get(failed.ID); !errors.Is(err, ErrNotFound) {
		t.Error("failed record survived its retention")
	}
	if _, err := m.Get(completed.ID); err != nil {
		t.Error("completed record swept before its retention")
	}

	// Past the result retention too, the completed record goes, artifacts
	// included.
	if n := sweeper.Sweep(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("second sweep removed %d, want 1", n)
	}
	if _, err := os.Stat(completedWorkDir); !os.IsNotExist(err) {
		t.Errorf("swept job's artifacts survived: %v", err)
	}

	// Sweeping again is a no-op.
	if n := sweeper.Sweep(time.Now().Add(2 * time.Hour)); n != 0 {
		t.Errorf("idempotent sweep removed %d", n)
	}
}
