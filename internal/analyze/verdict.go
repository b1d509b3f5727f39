package analyze

import (
	"encoding/json"
	"strings"

	"github.com/supporthq/sdkdoctor/internal/types"
)

// ParseVerdict extracts the verdict JSON from model output. Models sometimes
// wrap JSON in a fenced code block or add prose around it despite the prompt,
// so extraction is tolerant. On failure the raw text is preserved for the
// caller and the parse error is returned as a string.
func ParseVerdict(content string) (*types.Verdict, string) {
	candidate := extractJSON(content)
	if candidate == "" {
		return nil, "no JSON object found in model output"
	}

	var v types.Verdict
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, err.Error()
	}
	return &v, ""
}

// extractJSON returns the most plausible JSON object in s: a fenced block if
// one exists, otherwise the outermost brace-delimited span.
func extractJSON(s string) string {
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			fenced := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(fenced, "{") {
				return fenced
			}
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
