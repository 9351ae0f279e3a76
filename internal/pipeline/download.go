package pipeline

import (
	"context"
	"fmt"

	"github.com/muhammadegaa/reely/internal/ffmpeg"
)

// Downloader resolves a source reference into a local media file.
type Downloader interface {
	Download(ctx context.Context, source, dir string, maxHeight int, report func(float64)) (string, error)
}

// Prober reads media metadata from a local file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// downloadStage fetches the source and records its duration. maxHeight is
// kind-specific: analysis pipelines only need enough video to carry audio.
type downloadStage struct {
	downloader Downloader
	prober     Prober
	maxHeight  int
}

func (s *downloadStage) Name() string { return "download" }

func (s *downloadStage) Run(ctx context.Context, exec *Execution, report ProgressFunc) error {
	path, err := s.downloader.Download(ctx, exec.Request.Source, exec.WorkDir, s.maxHeight, report)
	if err != nil {
		return err
	}

	probe, err := s.prober.Probe(ctx, path)
	if err != nil {
		return fmt.Errorf("probe downloaded file: %w", err)
	}

	exec.SourcePath = path
	exec.SourceDurationSecs = probe.Duration.Seconds()
	exec.Result.OriginalDurationSecs = exec.SourceDurationSecs

	// A trim window past the end of the source clamps rather than fails,
	// matching how the seek itself would behave.
	if exec.Request.Kind == KindTrim {
		if exec.Request.EndSecs > exec.SourceDurationSecs {
			exec.Request.EndSecs = exec.SourceDurationSecs
		}
		if exec.Request.StartSecs >= exec.Request.EndSecs {
			return newStageError(KindInternal, s.Name(),
				fmt.Sprintf("trim start %.1fs is beyond the %.1fs source",
					exec.Request.StartSecs, exec.SourceDurationSecs), nil)
		}
	}
	return nil
}
