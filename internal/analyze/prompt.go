// Package analyze builds the triage prompt and parses the model's verdict.
package analyze

import (
	"fmt"
	"strings"

	"github.com/supporthq/sdkdoctor/internal/types"
)

// BuildOpts configures prompt construction.
type BuildOpts struct {
	Request   *types.TriageRequest
	MaxIssues int
	MaxFixes  int
}

const systemPreamble = `You are an SDK integration doctor. A developer has shared their SDK initialization code and a description of the problem they are seeing. Diagnose the misconfiguration and produce a structured verdict.

You MUST output ONLY valid JSON matching the schema below. No markdown, no prose outside JSON.

Spans that look like ***MASKED_XXX*** are credentials that were redacted before the text reached you. Treat them as syntactically valid values of that category; never ask the developer to share the real value and never reproduce a masked span in your output.

`

const schemaDefinition = `## Output JSON Schema

{
  "summary": "one-paragraph diagnosis",
  "correct": ["things the configuration gets right"],
  "issues": [{"area": "init|transport|auth|sampling|environment", "problem": "what is wrong and why"}],
  "fixes": [{"title": "short imperative title", "change": "the exact configuration change to make"}],
  "escalate": false
}`

// Build assembles the full triage prompt as a message list.
func Build(opts BuildOpts) []types.Message {
	var b strings.Builder

	b.WriteString(schemaDefinition)
	b.WriteString("\n\n")

	b.WriteString(`## Rules

1. Ground every issue in the provided config or description; do NOT invent SDK behavior.
2. Order issues by impact: the one most likely causing the reported symptom first.
3. Each fix must name the option or call to change, not just restate the issue.
4. Set "escalate" to true only when the problem cannot be resolved by a configuration change.
5. If the config and description are consistent and correct, return an empty issues list and say so in the summary.

`)

	req := opts.Request

	fmt.Fprintf(&b, "<sdk_config>\n%s\n</sdk_config>\n\n", req.SDKConfig)
	fmt.Fprintf(&b, "<symptoms>\n%s\n</symptoms>\n\n", req.Description)
	for _, att := range req.Attachments {
		fmt.Fprintf(&b, "<attachment name=%q>\n%s\n</attachment>\n\n", att.Name, att.Content)
	}
	if req.Project != "" {
		fmt.Fprintf(&b, "Project: %s\n\n", req.Project)
	}

	maxIssues := opts.MaxIssues
	if maxIssues <= 0 {
		maxIssues = 10
	}
	maxFixes := opts.MaxFixes
	if maxFixes <= 0 {
		maxFixes = 10
	}
	fmt.Fprintf(&b, "Return at most %d issues and %d fixes.\n", maxIssues, maxFixes)

	return []types.Message{
		{Role: "system", Content: systemPreamble},
		{Role: "user", Content: b.String()},
	}
}
