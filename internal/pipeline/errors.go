package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/muhammadegaa/reely/internal/ai"
	"github.com/muhammadegaa/reely/internal/ytdlp"
)

// ErrorKind classifies a stage failure for callers. Stages map their tool's
// failure modes onto this shared set instead of leaking raw tool errors.
type ErrorKind string

const (
	KindSourceUnavailable  ErrorKind = "source_unavailable"
	KindUnsupportedSource  ErrorKind = "unsupported_source"
	KindSegmentTooLarge    ErrorKind = "segment_too_large"
	KindRateLimited        ErrorKind = "rate_limited"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindProcessCrashed     ErrorKind = "process_crashed"
	KindTimeout            ErrorKind = "timeout"
	KindInternal           ErrorKind = "internal"
)

// StageError is a classified failure from a pipeline stage.
type StageError struct {
	Kind   ErrorKind
	Stage  string
	Detail string
	Err    error
}

func (e *StageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() error { return e.Err }

// newStageError builds a StageError keeping the cause chain intact.
func newStageError(kind ErrorKind, stage, detail string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Detail: detail, Err: err}
}

// classifyStageError maps a raw stage failure onto the taxonomy. Context
// cancellation passes through untouched so the scheduler can distinguish a
// caller cancel from a real failure.
func classifyStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	kind := KindProcessCrashed
	switch {
	case errors.Is(err, ytdlp.ErrSourceUnavailable):
		kind = KindSourceUnavailable
	case errors.Is(err, ytdlp.ErrUnsupportedSource):
		kind = KindUnsupportedSource
	case errors.Is(err, ai.ErrSegmentTooLarge):
		kind = KindSegmentTooLarge
	case errors.Is(err, ai.ErrRateLimited):
		kind = KindRateLimited
	case errors.Is(err, ai.ErrServiceUnavailable), errors.Is(err, ai.ErrBadResponse):
		kind = KindServiceUnavailable
	}
	return newStageError(kind, stage, err.Error(), err)
}
