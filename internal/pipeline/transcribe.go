package pipeline

import (
	"context"

	"github.com/muhammadegaa/reely/internal/ai"
)

// transcribeStage runs speech-to-text on the extracted audio. For trim jobs
// without subtitles there is nothing to transcribe and the stage completes
// immediately so the weight model stays static.
type transcribeStage struct {
	transcriber ai.Transcriber
}

func (s *transcribeStage) Name() string { return "transcribe" }

func (s *transcribeStage) Run(ctx context.Context, exec *Execution, report ProgressFunc) error {
	if exec.AudioPath == "" {
		report(1)
		return nil
	}

	transcript, err := s.transcriber.Transcribe(ctx, exec.AudioPath)
	if err != nil {
		return err
	}
	exec.Transcript = transcript
	report(1)
	return nil
}
