package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// TrimOptions controls how a clip is rendered from the source video.
type TrimOptions struct {
	InputPath    string
	OutputPath   string
	StartSecs    float64
	DurationSecs float64
	// Vertical reframes the clip to 1080x1920 with a blurred background fill.
	Vertical bool
	// SubtitlePath, when set, burns the SRT file into the video.
	SubtitlePath string
}

// TrimResult contains the outcome of a clip render
type TrimResult struct {
	OutputPath string
	OutputSize int64
}

// Trimmer wraps ffmpeg clip rendering
type Trimmer struct {
	ffmpegPath string
}

// NewTrimmer creates a new Trimmer with the given ffmpeg path
func NewTrimmer(ffmpegPath string) *Trimmer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Trimmer{ffmpegPath: ffmpegPath}
}

// Trim cuts and re-encodes a clip, reporting fractional progress in [0,1]
// parsed from ffmpeg's machine-readable progress stream.
func (t *Trimmer) Trim(ctx context.Context, opts TrimOptions, report func(float64)) (*TrimResult, error) {
	if opts.DurationSecs <= 0 {
		return nil, fmt.Errorf("trim: non-positive duration %v", opts.DurationSecs)
	}

	args := []string{
		"-ss", formatSeconds(opts.StartSecs),
		"-i", opts.InputPath,
		"-t", formatSeconds(opts.DurationSecs),
		"-y",
		"-progress", "pipe:1", // Output progress to stdout
		"-nostats",
	}
	if filter := buildFilter(opts); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "faster",
		"-crf", "25",
		"-maxrate", "2M",
		"-bufsize", "4M",
		"-c:a", "aac",
		"-b:a", "128k",
		"-avoid_negative_ts", "make_zero",
		"-movflags", "+faststart",
		opts.OutputPath,
	)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Progress output format: key=value, one pair per line
	total := time.Duration(opts.DurationSecs * float64(time.Second))
	go func() {
		scanner := bufio.NewScanner(stdout)
		var outTime time.Duration
		for scanner.Scan() {
			line := scanner.Text()
			idx := strings.Index(line, "=")
			if idx <= 0 {
				continue
			}
			key, value := line[:idx], line[idx+1:]
			switch key {
			case "out_time_us":
				if value != "N/A" {
					us, _ := strconv.ParseInt(value, 10, 64)
					outTime = time.Duration(us) * time.Microsecond
				}
			case "progress":
				if (value == "continue" || value == "end") && report != nil && total > 0 {
					frac := float64(outTime) / float64(total)
					if frac > 1 {
						frac = 1
					}
					report(frac)
				}
			}
		}
	}()

	if err := cmd.Wait(); err != nil {
		os.Remove(opts.OutputPath)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, tailOutput(stderr.String(), 5))
	}

	info, err := os.Stat(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(opts.OutputPath)
		return nil, fmt.Errorf("ffmpeg produced empty output")
	}
	if report != nil {
		report(1)
	}

	return &TrimResult{OutputPath: opts.OutputPath, OutputSize: info.Size()}, nil
}

// buildFilter assembles the -vf graph for reframing and caption burn-in.
func buildFilter(opts TrimOptions) string {
	var graph string
	if opts.Vertical {
		// Blurred copy of the source fills the 9:16 frame behind the
		// aspect-preserved foreground.
		graph = "split=2[bg][fg];" +
			"[bg]scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920,boxblur=20:5[bgout];" +
			"[fg]scale=1080:1920:force_original_aspect_ratio=decrease[fgout];" +
			"[bgout][fgout]overlay=(W-w)/2:(H-h)/2"
	}
	if opts.SubtitlePath != "" {
		style := "FontSize=18,PrimaryColour=&HFFFFFF&,OutlineColour=&H000000&,Outline=2,MarginV=60"
		subtitles := fmt.Sprintf("subtitles=%s:force_style='%s'",
			escapeFilterPath(opts.SubtitlePath), style)
		if graph != "" {
			graph += "," + subtitles
		} else {
			graph = subtitles
		}
	}
	return graph
}

// escapeFilterPath escapes characters that break ffmpeg filter option parsing.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
	)
	return replacer.Replace(path)
}
