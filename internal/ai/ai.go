// Package ai wraps the external speech-to-text and language-model services
// used by the pipeline. Clients are plain net/http wrappers; callers map the
// exported sentinel errors onto the job error taxonomy.
package ai

import (
	"context"
	"errors"
)

// Sentinel errors for service failure classification.
// These can be checked with errors.Is().
var (
	ErrRateLimited        = errors.New("service rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrSegmentTooLarge    = errors.New("audio segment too large")
	ErrBadResponse        = errors.New("malformed service response")
)

// Segment is one timestamped span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the ordered output of the speech-to-text service.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Candidate is one hook moment proposed by the language model, before
// validation against the source duration.
type Candidate struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Title  string  `json:"title"`
	Reason string  `json:"reason"`
}

// Transcriber produces a transcript from an audio file on disk.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcript, error)
}

// HookAnalyzer proposes hook candidates from a transcript.
type HookAnalyzer interface {
	AnalyzeHooks(ctx context.Context, tr *Transcript, target int) ([]Candidate, error)
}
