package stages

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencePattern strips a leading ```json\n or ``` fence and a trailing
// ``` fence, per spec.md §9: "Chunked LLM output may be wrapped in
// markdown fences; always strip fences before JSON-parse." Grounded on
// the teacher's clients/openai/caption.go parseCaptionJSON, which uses
// brace-index extraction for the same "model didn't return raw JSON"
// problem; this adds the explicit fence regex spec.md §4.6 calls out by
// name.
var (
	leadingFence  = regexp.MustCompile("(?i)^```(json)?\\n?")
	trailingFence = regexp.MustCompile("\\n?```\\s*$")
)

// stripMarkdownFence removes a surrounding ```json ... ``` or ``` ... ```
// fence if present, leaving s unchanged otherwise.
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// parseExtractedPO strips markdown fencing, then JSON-parses the
// extraction RPC's response envelope. If the fence-stripped text still
// isn't valid JSON (extra prose around the object) it falls back to
// brace-index extraction, the teacher's parseCaptionJSON technique.
func parseExtractedPO(raw string) (ExtractedPO, error) {
	s := stripMarkdownFence(raw)

	var out ExtractedPO
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ExtractedPO{}, fmt.Errorf("extraction response contains no JSON object")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return ExtractedPO{}, fmt.Errorf("parse extraction response: %w", err)
	}
	return out, nil
}
