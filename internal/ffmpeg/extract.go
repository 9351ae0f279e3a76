package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Extractor wraps ffmpeg audio extraction
type Extractor struct {
	ffmpegPath string
}

// NewExtractor creates a new Extractor with the given ffmpeg path
func NewExtractor(ffmpegPath string) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{ffmpegPath: ffmpegPath}
}

// ExtractAudioSegment pulls the [start, start+duration) window out of a video
// as 16 kHz mono PCM WAV, the cheapest format the transcription API accepts.
// Seeking happens before the input open so only the window is decoded.
func (e *Extractor) ExtractAudioSegment(ctx context.Context, inputPath, outputPath string, startSecs, durationSecs float64) error {
	if durationSecs <= 0 {
		return fmt.Errorf("extract audio: non-positive duration %v", durationSecs)
	}

	args := []string{
		"-ss", formatSeconds(startSecs),
		"-i", inputPath,
		"-t", formatSeconds(durationSecs),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-avoid_negative_ts", "make_zero",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg audio extract failed: %w: %s", err, tailOutput(string(output), 5))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("ffmpeg produced no audio output: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg produced empty audio output")
	}
	return nil
}

// formatSeconds renders a float seconds value for an ffmpeg argument.
func formatSeconds(secs float64) string {
	return strconv.FormatFloat(secs, 'f', 3, 64)
}

// tailOutput returns the last n lines of command output joined on one line.
func tailOutput(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
