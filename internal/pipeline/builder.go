package pipeline

import (
	"fmt"
	"time"

	"github.com/muhammadegaa/reely/internal/ai"
)

// Download resolution caps. Analysis pipelines only keep the audio, so a
// low-resolution fetch is enough; trim output quality tracks the source.
const (
	trimMaxHeight = 720
	hookMaxHeight = 360
)

// Tools bundles the external tool clients the stages run on.
type Tools struct {
	Downloader  Downloader
	Prober      Prober
	Extractor   Extractor
	Trimmer     Trimmer
	Transcriber ai.Transcriber
	Analyzers   AnalyzerResolver
}

// Settings carries the tunables the stage executors need.
type Settings struct {
	DownloadTimeout   time.Duration
	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration
	AnalyzeTimeout    time.Duration
	TranscodeTimeout  time.Duration

	// AnalysisWindowSecs bounds how much audio hook detection transcribes.
	AnalysisWindowSecs float64
	HookMinSecs        float64
	HookMaxSecs        float64
	TargetHooks        int
}

// BuildDefinitions assembles the static pipeline definitions once at startup.
func BuildDefinitions(tools Tools, settings Settings) (map[Kind]*Definition, error) {
	if tools.Downloader == nil || tools.Prober == nil || tools.Extractor == nil ||
		tools.Trimmer == nil || tools.Transcriber == nil || tools.Analyzers == nil {
		return nil, fmt.Errorf("pipeline tools incomplete")
	}

	trim, err := NewDefinition(KindTrim,
		WeightedStage{
			Stage:   &downloadStage{downloader: tools.Downloader, prober: tools.Prober, maxHeight: trimMaxHeight},
			Weight:  40,
			Timeout: settings.DownloadTimeout,
		},
		WeightedStage{
			Stage:   &extractStage{extractor: tools.Extractor},
			Weight:  10,
			Timeout: settings.ExtractTimeout,
		},
		WeightedStage{
			Stage:   &transcribeStage{transcriber: tools.Transcriber},
			Weight:  20,
			Timeout: settings.TranscribeTimeout,
		},
		WeightedStage{
			Stage:   &transcodeStage{trimmer: tools.Trimmer},
			Weight:  30,
			Timeout: settings.TranscodeTimeout,
		},
	)
	if err != nil {
		return nil, err
	}

	hookDetect, err := NewDefinition(KindHookDetect,
		WeightedStage{
			Stage:   &downloadStage{downloader: tools.Downloader, prober: tools.Prober, maxHeight: hookMaxHeight},
			Weight:  30,
			Timeout: settings.DownloadTimeout,
		},
		WeightedStage{
			Stage:   &extractStage{extractor: tools.Extractor, windowSecs: settings.AnalysisWindowSecs},
			Weight:  10,
			Timeout: settings.ExtractTimeout,
		},
		WeightedStage{
			Stage:   &transcribeStage{transcriber: tools.Transcriber},
			Weight:  30,
			Timeout: settings.TranscribeTimeout,
		},
		WeightedStage{
			Stage: &analyzeStage{
				resolve: tools.Analyzers,
				target:  settings.TargetHooks,
				minSecs: settings.HookMinSecs,
				maxSecs: settings.HookMaxSecs,
			},
			Weight:  30,
			Timeout: settings.AnalyzeTimeout,
		},
	)
	if err != nil {
		return nil, err
	}

	return map[Kind]*Definition{
		KindTrim:       trim,
		KindHookDetect: hookDetect,
	}, nil
}
