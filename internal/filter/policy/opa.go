// Package policy evaluates org escalation policy over scan manifests. Policy
// sees category names and counts, never matched content: a bundle can force
// human escalation when certain categories were masked, or refuse to forward
// a case at all (e.g. any request that arrived carrying a private key).
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/supporthq/sdkdoctor/internal/config"
)

// Input is the data sent to OPA for evaluation.
type Input struct {
	User    User    `json:"user"`
	Request Request `json:"request"`
	Time    Time    `json:"time"`
}

type User struct {
	ID   string `json:"id"`
	Org  string `json:"org"`
	Team string `json:"team"`
}

type Request struct {
	Model string `json:"model"`
	// Categories maps masked category name to occurrence count, merged
	// across all request fields.
	Categories  map[string]int `json:"categories"`
	MaskedTotal int            `json:"masked_total"`
}

type Time struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the policy outcome for one request.
type Decision struct {
	Allow    bool
	Escalate bool
	Reason   string
}

// Evaluator compiles and runs the escalation policy bundle.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyFilterConfig
}

const policyQuery = "[data.sdkdoctor.policy.allow, data.sdkdoctor.policy.escalate, data.sdkdoctor.policy.reason]"

// NewEvaluator creates a policy evaluator. Call Load() to compile policies.
func NewEvaluator(cfg func() config.PolicyFilterConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Name() string  { return "policy" }
func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles Rego modules from the bundle path.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	return e.LoadFromModules(modules)
}

// LoadFromModules compiles policies from provided module sources.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(policyQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}
	r := rego.New(opts...)

	prepared, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()

	slog.Info("escalation policies loaded", "modules", len(modules))
	return nil
}

// Evaluate runs the policy against the given input. With no bundle loaded the
// proxy runs without policy: everything is allowed, nothing force-escalated.
// An evaluation error fails closed.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (Decision, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return Decision{Allow: true}, nil
	}

	cfg := e.cfg()
	timeout := cfg.EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return Decision{Reason: "policy evaluation error"}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "no policy result"}, nil
	}

	// Result is [allow, escalate, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 3 {
		return Decision{Reason: "unexpected policy result format"}, nil
	}

	allow, _ := arr[0].(bool)
	escalate, _ := arr[1].(bool)
	reason, _ := arr[2].(string)

	return Decision{Allow: allow, Escalate: escalate, Reason: reason}, nil
}
