package pipeline

import (
	"context"

	"github.com/muhammadegaa/reely/internal/ai"
	"github.com/muhammadegaa/reely/internal/logger"
)

// AnalyzerResolver picks a hook analyzer for the requested provider.
type AnalyzerResolver func(provider string) (ai.HookAnalyzer, error)

// analyzeStage asks a language model for hook candidates and keeps the
// valid subset. An empty surviving set is a successful run with no hooks,
// not a failure.
type analyzeStage struct {
	resolve AnalyzerResolver
	target  int
	minSecs float64
	maxSecs float64
}

func (s *analyzeStage) Name() string { return "analyze" }

func (s *analyzeStage) Run(ctx context.Context, exec *Execution, report ProgressFunc) error {
	analyzer, err := s.resolve(exec.Request.Provider)
	if err != nil {
		return newStageError(KindInternal, s.Name(), err.Error(), err)
	}
	if exec.Transcript == nil {
		return newStageError(KindInternal, s.Name(), "no transcript available", nil)
	}

	candidates, err := analyzer.AnalyzeHooks(ctx, exec.Transcript, s.target)
	if err != nil {
		return err
	}

	hooks := make([]Hook, 0, len(candidates))
	for _, c := range candidates {
		if !s.valid(c, exec.SourceDurationSecs) {
			logger.Debug("Dropping invalid hook candidate",
				"start", c.Start, "end", c.End, "title", c.Title)
			continue
		}
		hooks = append(hooks, Hook{
			StartSecs: c.Start,
			EndSecs:   c.End,
			Title:     c.Title,
			Reason:    c.Reason,
		})
		if len(hooks) == s.target {
			break
		}
	}

	logger.Info("Hook analysis complete", "kept", len(hooks), "candidates", len(candidates))
	exec.Result.Hooks = hooks
	report(1)
	return nil
}

// valid enforces candidate bounds against the probed source duration and
// the configured clip-length window.
func (s *analyzeStage) valid(c ai.Candidate, sourceDuration float64) bool {
	if c.Start < 0 || c.End <= c.Start || c.End > sourceDuration {
		return false
	}
	length := c.End - c.Start
	if s.minSecs > 0 && length < s.minSecs {
		return false
	}
	if s.maxSecs > 0 && length > s.maxSecs {
		return false
	}
	return true
}
