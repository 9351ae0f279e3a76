package ffmpeg

import (
	"fmt"
	"os"
	"strings"
)

// Cue is a single timed caption. Times are seconds relative to the clip start.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// maxCueLineChars keeps burned-in captions readable on a vertical frame.
const maxCueLineChars = 35

// WindowCues selects cues overlapping the [start, end) source window and
// rebases their timestamps onto the clip timeline, clamping at the edges.
func WindowCues(cues []Cue, start, end float64) []Cue {
	var out []Cue
	for _, cue := range cues {
		if cue.End <= start || cue.Start >= end {
			continue
		}
		s := cue.Start - start
		if s < 0 {
			s = 0
		}
		e := cue.End - start
		if e > end-start {
			e = end - start
		}
		if e <= s {
			continue
		}
		out = append(out, Cue{Start: s, End: e, Text: cue.Text})
	}
	return out
}

// WriteSRT writes cues as an SRT file at path.
func WriteSRT(path string, cues []Cue) error {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(cue.Start), srtTimestamp(cue.End))
		for _, line := range wrapCueText(cue.Text, maxCueLineChars) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// srtTimestamp renders seconds as the SRT HH:MM:SS,mmm format.
func srtTimestamp(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	millis := int64(secs*1000 + 0.5)
	h := millis / 3600000
	millis %= 3600000
	m := millis / 60000
	millis %= 60000
	s := millis / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// wrapCueText splits text into lines no longer than width, breaking on words.
// A single word longer than width gets its own line rather than being cut.
func wrapCueText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) <= width {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}
