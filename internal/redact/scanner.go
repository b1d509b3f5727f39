// Package redact is the sensitive-data masking engine. It scans arbitrary
// text for credential-shaped substrings and replaces them with one-way
// sentinels before the text crosses a trust boundary. The same engine runs at
// every boundary (ingest endpoint, upstream gate, outbound pass), so masking
// is idempotent: re-scanning masked output changes nothing and counts nothing.
package redact

import "strings"

// Result is the manifest produced by one scan. The original text is never
// retained; callers hold only the redacted form.
type Result struct {
	// Text is the redacted text.
	Text string
	// Counts maps category name to the number of occurrences masked in this
	// scan. Categories with no matches are absent.
	Counts map[string]int
	// Masked reports whether any redaction occurred.
	Masked bool
}

// Scanner applies the pattern registry to text. It is stateless and safe for
// concurrent use.
type Scanner struct {
	patterns []Pattern
}

// NewScanner returns a scanner over the default registry.
func NewScanner() *Scanner {
	return &Scanner{patterns: DefaultPatterns()}
}

// NewScannerWithPatterns returns a scanner over a custom registry. Used by
// the outbound pass, which runs only the structured-URL categories.
func NewScannerWithPatterns(patterns []Pattern) *Scanner {
	return &Scanner{patterns: patterns}
}

// Redact applies every pattern in registry order to text and returns the
// redacted text plus the manifest. Later patterns see the effect of earlier
// replacements. Matched spans that are recognizable placeholders, or that
// already contain a sentinel, are left unmodified and not counted.
func (s *Scanner) Redact(text string) Result {
	counts := make(map[string]int)
	for _, p := range s.patterns {
		text = p.Regex.ReplaceAllStringFunc(text, func(span string) string {
			if strings.Contains(span, maskMarker) {
				return span
			}
			if p.Contextual && isPlaceholder(span) {
				return span
			}
			counts[p.Name]++
			if p.Replace == nil {
				return p.Token
			}
			sub := p.Regex.FindStringSubmatch(span)
			if sub == nil {
				return p.Token
			}
			return p.Replace(sub)
		})
	}
	return Result{Text: text, Counts: counts, Masked: len(counts) > 0}
}

// Merge adds src's per-category counts into dst and returns dst. Used to
// aggregate manifests across independently scanned inputs (multiple uploaded
// files, multiple request fields).
func Merge(dst, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int)
	}
	for category, n := range src {
		dst[category] += n
	}
	return dst
}

// OutboundPatterns returns the registry subset applied to model output before
// it is rendered or streamed back: the structured URL categories, which are
// the shapes a model plausibly echoes verbatim.
func OutboundPatterns() []Pattern {
	var out []Pattern
	for _, p := range DefaultPatterns() {
		switch p.Name {
		case "Sentry DSN", "Connection String":
			out = append(out, p)
		}
	}
	return out
}
