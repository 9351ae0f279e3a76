// Package pipeline defines the staged execution model for processing jobs:
// weighted stage definitions, the runner that drives them with per-stage
// timeouts, and the shared failure taxonomy.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/muhammadegaa/reely/internal/ai"
)

// Kind identifies a pipeline definition.
type Kind string

const (
	KindTrim       Kind = "trim"
	KindHookDetect Kind = "hook_detect"
)

// ValidKind reports whether k names a known pipeline.
func ValidKind(k Kind) bool {
	return k == KindTrim || k == KindHookDetect
}

// Request is the validated input a job carries into the pipeline.
type Request struct {
	Kind      Kind    `json:"kind"`
	Source    string  `json:"source"`
	StartSecs float64 `json:"start"`
	EndSecs   float64 `json:"end"`
	Vertical  bool    `json:"vertical"`
	Subtitles bool    `json:"subtitles"`
	Provider  string  `json:"ai_provider,omitempty"`
}

// Hook is one detected hook moment in the source video.
type Hook struct {
	StartSecs float64 `json:"start"`
	EndSecs   float64 `json:"end"`
	Title     string  `json:"title"`
	Reason    string  `json:"reason"`
}

// Result is produced by a pipeline run that reached the end.
type Result struct {
	OutputPath           string  `json:"output_path,omitempty"`
	OriginalDurationSecs float64 `json:"original_duration"`
	TrimmedDurationSecs  float64 `json:"trimmed_duration,omitempty"`
	Hooks                []Hook  `json:"hooks,omitempty"`
}

// Execution is the scratch state threaded through a single run's stages.
// Stages write what later stages read; nothing here escapes to callers.
type Execution struct {
	Request Request
	WorkDir string

	SourcePath         string
	SourceDurationSecs float64
	AudioPath          string
	Transcript         *ai.Transcript

	Result Result
}

// ProgressFunc reports a stage's own fractional progress in [0,1].
type ProgressFunc func(frac float64)

// Stage is one unit of pipeline work.
type Stage interface {
	Name() string
	Run(ctx context.Context, exec *Execution, report ProgressFunc) error
}

// WeightedStage pairs a stage with its share of overall progress and its
// execution timeout.
type WeightedStage struct {
	Stage   Stage
	Weight  int
	Timeout time.Duration
}

// Definition is an ordered, weighted stage sequence for one job kind.
type Definition struct {
	Kind   Kind
	Stages []WeightedStage
}

// NewDefinition builds a definition, rejecting weight sets that do not
// cover the full progress range.
func NewDefinition(kind Kind, stages ...WeightedStage) (*Definition, error) {
	total := 0
	for _, ws := range stages {
		if ws.Weight <= 0 {
			return nil, fmt.Errorf("pipeline %s: stage %s has non-positive weight %d",
				kind, ws.Stage.Name(), ws.Weight)
		}
		total += ws.Weight
	}
	if total != 100 {
		return nil, fmt.Errorf("pipeline %s: stage weights sum to %d, want 100", kind, total)
	}
	return &Definition{Kind: kind, Stages: stages}, nil
}

// ProgressUpdate is emitted as stages advance. Percent covers the whole run.
type ProgressUpdate struct {
	Stage   string
	Percent float64
}

// Run drives the stages in order. Each stage runs under its own timeout
// derived from ctx. The returned error is either a classified *StageError,
// or a context error when ctx itself was cancelled, which the caller turns
// into a cancelled (not failed) outcome.
func (d *Definition) Run(ctx context.Context, exec *Execution, onProgress func(ProgressUpdate)) error {
	completed := 0.0
	for _, ws := range d.Stages {
		stage := ws.Stage
		weight := float64(ws.Weight)

		report := func(frac float64) {
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			if onProgress != nil {
				onProgress(ProgressUpdate{Stage: stage.Name(), Percent: completed + frac*weight})
			}
		}

		// Announce the stage before it runs so observers always see the
		// executing stage's name, not the previous one's last report.
		if onProgress != nil {
			onProgress(ProgressUpdate{Stage: stage.Name(), Percent: completed})
		}

		stageCtx := ctx
		cancel := context.CancelFunc(func() {})
		if ws.Timeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, ws.Timeout)
		}
		err := stage.Run(stageCtx, exec, report)
		cancel()

		if err != nil {
			// The parent context owns cancellation; a stage deadline is a
			// timeout failure of that stage.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stageCtx.Err() == context.DeadlineExceeded {
				return newStageError(KindTimeout, stage.Name(),
					fmt.Sprintf("stage exceeded %s limit", ws.Timeout), err)
			}
			return classifyStageError(stage.Name(), err)
		}

		completed += weight
		if onProgress != nil {
			onProgress(ProgressUpdate{Stage: stage.Name(), Percent: completed})
		}
	}
	return nil
}
