package analyze

import "github.com/supporthq/sdkdoctor/internal/redact"

// Sanitizer is the outbound defensive pass: model output is scanned with the
// structured-URL subset of the registry before it is returned or streamed.
// Masked sentinels already present in the output pass through untouched.
type Sanitizer struct {
	scanner *redact.Scanner
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{scanner: redact.NewScannerWithPatterns(redact.OutboundPatterns())}
}

// Sanitize redacts text and returns it with the per-category counts of
// anything caught. A non-empty count here means the model echoed a live
// credential shape, which callers log and count.
func (s *Sanitizer) Sanitize(text string) (string, map[string]int) {
	res := s.scanner.Redact(text)
	return res.Text, res.Counts
}
