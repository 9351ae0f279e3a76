// Package ytdlp shells out to yt-dlp to resolve a source reference into a
// local media file, with download progress parsed from its output.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Sentinel errors for downloader failure classification.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrUnsupportedSource = errors.New("unsupported source")
)

// Client wraps the yt-dlp binary.
type Client struct {
	binPath string
}

// NewClient creates a downloader using the given yt-dlp binary.
func NewClient(binPath string) *Client {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Client{binPath: binPath}
}

// formatSelector caps resolution so later stages pay a bounded cost.
func formatSelector(maxHeight int) string {
	if maxHeight <= 0 {
		return "best"
	}
	return fmt.Sprintf("best[height<=%d]/worst", maxHeight)
}

// Download fetches the source into dir, capped at maxHeight, reporting
// fractional progress in [0,1]. Returns the path of the downloaded file.
func (c *Client) Download(ctx context.Context, source, dir string, maxHeight int, report func(float64)) (string, error) {
	args := []string{
		"--no-playlist",
		"--newline",
		"--no-warnings",
		"--retries", "3",
		"--socket-timeout", "30",
		"-f", formatSelector(maxHeight),
		"-o", filepath.Join(dir, "source.%(ext)s"),
		source,
	}

	cmd := exec.CommandContext(ctx, c.binPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start yt-dlp: %w", err)
	}

	// Progress lines look like: [download]  45.2% of 10.00MiB at 1.00MiB/s
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if frac, ok := parseProgressLine(scanner.Text()); ok && report != nil {
			report(frac)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyFailure(err, stderr.String())
	}

	file, err := findDownloadedFile(dir)
	if err != nil {
		return "", err
	}
	if report != nil {
		report(1)
	}
	return file, nil
}

// parseProgressLine extracts the percent from a "[download]  NN.N%" line.
func parseProgressLine(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[download]") {
		return 0, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "[download]"))
	idx := strings.Index(rest, "%")
	if idx <= 0 {
		return 0, false
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(rest[:idx]), 64)
	if err != nil || pct < 0 {
		return 0, false
	}
	if pct > 100 {
		pct = 100
	}
	return pct / 100, true
}

// classifyFailure maps yt-dlp stderr markers onto the sentinel errors.
func classifyFailure(err error, stderr string) error {
	detail := lastLines(stderr, 3)
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "unsupported url"),
		strings.Contains(lower, "is not a valid url"):
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, detail)
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "members-only"),
		strings.Contains(lower, "removed by the uploader"),
		strings.Contains(lower, "404"):
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, detail)
	default:
		return fmt.Errorf("yt-dlp failed: %w: %s", err, detail)
	}
}

func findDownloadedFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read download dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".mp4", ".webm", ".mkv":
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", errors.New("downloaded file not found")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
