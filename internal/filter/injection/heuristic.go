// Package injection flags issue text that tries to steer the analysis model
// instead of describing a symptom. Pasted support tickets occasionally carry
// hostile instructions verbatim; the proxy flags them for the operator but
// never rejects a case on this signal alone unless the block threshold is met.
package injection

import (
	"context"
	"fmt"

	"github.com/supporthq/sdkdoctor/internal/config"
	"github.com/supporthq/sdkdoctor/internal/filter"
	"github.com/supporthq/sdkdoctor/internal/types"
)

// Detection records a matched steering pattern.
type Detection struct {
	RuleName string
	Severity float64
	Start    int
	End      int
}

// Scanner scans request text for prompt steering patterns.
type Scanner struct {
	rules []Rule
	cfg   func() config.InjectionFilterConfig
}

// NewScanner creates a steering-pattern scanner.
func NewScanner(cfg func() config.InjectionFilterConfig) *Scanner {
	return &Scanner{rules: DefaultRules(), cfg: cfg}
}

func (s *Scanner) Name() string  { return "injection" }
func (s *Scanner) Enabled() bool { return s.cfg().Enabled }

// Scan checks a single text string and returns all detections.
func (s *Scanner) Scan(text string) []Detection {
	var detections []Detection
	for _, r := range s.rules {
		locs := r.Regex.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			detections = append(detections, Detection{
				RuleName: r.Name,
				Severity: r.Severity,
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}
	return detections
}

// ScanRequest implements filter.Filter. The score is the max severity across
// all free-text fields.
func (s *Scanner) ScanRequest(_ context.Context, req *types.TriageRequest) filter.Result {
	var detections []Detection
	score := 0.0
	for _, field := range req.FreeTextFields() {
		found := s.Scan(*field)
		detections = append(detections, found...)
		for _, d := range found {
			if d.Severity > score {
				score = d.Severity
			}
		}
	}

	cfg := s.cfg()
	if score >= cfg.BlockThreshold {
		return filter.Result{
			Action:     filter.ActionBlock,
			FilterName: "injection",
			Message:    fmt.Sprintf("Request blocked: prompt steering detected (score %.2f)", score),
			Detections: len(detections),
			Score:      score,
		}
	}
	if score >= cfg.FlagThreshold {
		return filter.Result{
			Action:     filter.ActionFlag,
			FilterName: "injection",
			Detections: len(detections),
			Score:      score,
		}
	}
	return filter.Result{Action: filter.ActionPass, FilterName: "injection", Score: score}
}
