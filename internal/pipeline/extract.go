package pipeline

import (
	"context"
	"path/filepath"
)

// Extractor pulls an audio window out of a video file.
type Extractor interface {
	ExtractAudioSegment(ctx context.Context, inputPath, outputPath string, startSecs, durationSecs float64) error
}

// extractStage produces the audio the transcriber consumes. Trim jobs only
// need it when subtitles were requested; analysis jobs always need it and
// read from the start of the source, capped at windowSecs.
type extractStage struct {
	extractor  Extractor
	windowSecs float64
}

func (s *extractStage) Name() string { return "extract" }

func (s *extractStage) Run(ctx context.Context, exec *Execution, report ProgressFunc) error {
	req := exec.Request
	if req.Kind == KindTrim && !req.Subtitles {
		report(1)
		return nil
	}

	var start, duration float64
	switch req.Kind {
	case KindTrim:
		start = req.StartSecs
		duration = req.EndSecs - req.StartSecs
	default:
		start = 0
		duration = exec.SourceDurationSecs
		if s.windowSecs > 0 && duration > s.windowSecs {
			duration = s.windowSecs
		}
	}

	audioPath := filepath.Join(exec.WorkDir, "audio.wav")
	if err := s.extractor.ExtractAudioSegment(ctx, exec.SourcePath, audioPath, start, duration); err != nil {
		return err
	}
	exec.AudioPath = audioPath
	report(1)
	return nil
}
