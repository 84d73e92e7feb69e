package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Models wrap their JSON in prose or markdown fences more often than
// not. Extraction is two-stage: prefer a fenced block, fall back to the
// first brace-delimited span, then the raw content.
var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	braceSpanRe  = regexp.MustCompile(`(?s)\{.*?\}`)
)

// extractJSON pulls the most plausible JSON object out of raw model
// output.
func extractJSON(content string) string {
	if m := fencedJSONRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if m := braceSpanRe.FindString(content); m != "" {
		return m
	}
	return strings.TrimSpace(content)
}

// verdictPayload is the structure the judge prompts ask for. The
// contradiction prompt uses "contradicts", the deletion prompt uses
// "should_delete"; both carry reasoning.
type verdictPayload struct {
	Contradicts  *bool  `json:"contradicts"`
	ShouldDelete *bool  `json:"should_delete"`
	Reasoning    string `json:"reasoning"`
}

// parseVerdict parses raw model output into (positive, reasoning).
// An error here means the response was unparseable and the caller must
// fail closed.
func parseVerdict(content string) (bool, string, error) {
	var payload verdictPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return false, "", fmt.Errorf("parse verdict: %w", err)
	}

	var positive bool
	switch {
	case payload.Contradicts != nil:
		positive = *payload.Contradicts
	case payload.ShouldDelete != nil:
		positive = *payload.ShouldDelete
	default:
		return false, "", fmt.Errorf("parse verdict: no contradicts or should_delete field")
	}

	reasoning := payload.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}
	return positive, reasoning, nil
}
