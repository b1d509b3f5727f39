// Package secrets is the server-side masking gate: the defense-in-depth
// second pass over request text at the proxy boundary. The first pass runs
// client-side before submission, so on a well-behaved client this gate is a
// no-op; anything it does catch indicates a bypass or a client-side gap.
package secrets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/supporthq/sdkdoctor/internal/config"
	"github.com/supporthq/sdkdoctor/internal/filter"
	"github.com/supporthq/sdkdoctor/internal/redact"
	"github.com/supporthq/sdkdoctor/internal/types"
)

// Gate applies the masking engine to every free-text request field.
type Gate struct {
	scanner *redact.Scanner
	cfg     func() config.SecretsFilterConfig
}

// NewGate creates the server-side masking gate.
func NewGate(cfg func() config.SecretsFilterConfig) *Gate {
	return &Gate{scanner: redact.NewScanner(), cfg: cfg}
}

func (g *Gate) Name() string  { return "secrets" }
func (g *Gate) Enabled() bool { return g.cfg().Enabled }

// ScanRequest redacts every free-text field in place and reports merged
// per-category counts. Redaction is corrective, not blocking: the request
// proceeds with the masked text even when something was caught.
func (g *Gate) ScanRequest(_ context.Context, req *types.TriageRequest) filter.Result {
	var counts map[string]int
	for _, field := range req.FreeTextFields() {
		res := g.scanner.Redact(*field)
		if res.Masked {
			*field = res.Text
			counts = redact.Merge(counts, res.Counts)
		}
	}

	if len(counts) == 0 {
		return filter.Result{Action: filter.ActionPass, FilterName: "secrets"}
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	// A catch here means the client-side pass was bypassed or has a gap.
	// Log categories and counts only.
	slog.Warn("server gate masked content the client pass missed",
		"request_id", req.RequestID,
		"org_id", req.OrganizationID,
		"categories", counts,
		"total", total,
	)

	return filter.Result{
		Action:     filter.ActionRedact,
		FilterName: "secrets",
		Message:    fmt.Sprintf("Masked %d credential-shaped value(s) across %d categor(ies)", total, len(counts)),
		Detections: total,
		Counts:     counts,
	}
}
