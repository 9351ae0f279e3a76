package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const hookSystemPrompt = "You are an expert video editor specializing in creating viral short clips. " +
	"You understand what makes content engaging and shareable."

// buildHookPrompt renders the analysis prompt from a transcript. Only the
// first segments are echoed back as timestamp reference to keep the prompt
// bounded on long transcripts.
func buildHookPrompt(tr *Transcript, target int) string {
	const maxReferenceSegments = 20

	segments := tr.Segments
	if len(segments) > maxReferenceSegments {
		segments = segments[:maxReferenceSegments]
	}
	reference := "No segments available"
	if len(segments) > 0 {
		if encoded, err := json.MarshalIndent(segments, "", "  "); err == nil {
			reference = string(encoded)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this video transcript and identify %d \"hook moments\" that would make compelling short clips.\n\n", target)
	b.WriteString("Hook moments should be:\n")
	b.WriteString("- Emotionally charged, surprising, or curiosity-inducing\n")
	b.WriteString("- 15-30 seconds long each\n")
	b.WriteString("- Self-contained and engaging\n")
	b.WriteString("- Have clear start/end points\n\n")
	fmt.Fprintf(&b, "Transcript:\n%s\n\n", tr.Text)
	fmt.Fprintf(&b, "Segment timestamps (for reference):\n%s\n\n", reference)
	b.WriteString("Respond with ONLY a JSON array in this exact format:\n")
	b.WriteString(`[{"start": 120, "end": 145, "title": "The shocking statistic that changes everything", "reason": "Contains surprising data that creates curiosity"}]`)
	b.WriteString("\n\nEnsure timestamps are realistic based on the content length.")
	return b.String()
}

// parseCandidates extracts the JSON array from a model reply, tolerating
// surrounding prose, and decodes it. Structural problems are ErrBadResponse;
// per-candidate range validation happens in the analysis stage.
func parseCandidates(reply string) ([]Candidate, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array in reply", ErrBadResponse)
	}

	var raw []struct {
		Start  json.Number `json:"start"`
		End    json.Number `json:"end"`
		Title  string      `json:"title"`
		Reason string      `json:"reason"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	candidates := make([]Candidate, 0, len(raw))
	for _, item := range raw {
		s, errS := item.Start.Float64()
		e, errE := item.End.Float64()
		if errS != nil || errE != nil || strings.TrimSpace(item.Title) == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Start:  s,
			End:    e,
			Title:  clampLen(strings.TrimSpace(item.Title), 100),
			Reason: clampLen(strings.TrimSpace(item.Reason), 200),
		})
	}
	return candidates, nil
}

func clampLen(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
