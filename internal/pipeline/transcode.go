package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/muhammadegaa/reely/internal/ffmpeg"
	"github.com/muhammadegaa/reely/internal/logger"
	"github.com/muhammadegaa/reely/internal/util"
)

// Trimmer renders a clip from a source video.
type Trimmer interface {
	Trim(ctx context.Context, opts ffmpeg.TrimOptions, report func(float64)) (*ffmpeg.TrimResult, error)
}

// transcodeStage renders the final clip, burning in captions when the
// request asked for them and a transcript exists.
type transcodeStage struct {
	trimmer Trimmer
}

func (s *transcodeStage) Name() string { return "transcode" }

func (s *transcodeStage) Run(ctx context.Context, exec *Execution, report ProgressFunc) error {
	req := exec.Request

	opts := ffmpeg.TrimOptions{
		InputPath:    exec.SourcePath,
		OutputPath:   filepath.Join(exec.WorkDir, "clip.mp4"),
		StartSecs:    req.StartSecs,
		DurationSecs: req.EndSecs - req.StartSecs,
		Vertical:     req.Vertical,
	}

	if req.Subtitles && exec.Transcript != nil && len(exec.Transcript.Segments) > 0 {
		// The audio window already started at the trim point, so transcript
		// timestamps are clip-relative as-is.
		cues := make([]ffmpeg.Cue, 0, len(exec.Transcript.Segments))
		for _, seg := range exec.Transcript.Segments {
			cues = append(cues, ffmpeg.Cue{Start: seg.Start, End: seg.End, Text: seg.Text})
		}
		cues = ffmpeg.WindowCues(cues, 0, opts.DurationSecs)

		srtPath := filepath.Join(exec.WorkDir, "captions.srt")
		if err := ffmpeg.WriteSRT(srtPath, cues); err != nil {
			return fmt.Errorf("write captions: %w", err)
		}
		opts.SubtitlePath = srtPath
	}

	result, err := s.trimmer.Trim(ctx, opts, report)
	if err != nil {
		return err
	}

	logger.Info("Clip rendered",
		"output", result.OutputPath,
		"size", util.FormatBytes(result.OutputSize),
		"duration", util.FormatSeconds(opts.DurationSecs))

	exec.Result.OutputPath = result.OutputPath
	exec.Result.TrimmedDurationSecs = opts.DurationSecs
	return nil
}
