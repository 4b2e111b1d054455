// Package policy gates run triggers with an OPA policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Input is what a run trigger is judged on.
type Input struct {
	RunKey            string `json:"run_key"`
	Mode              string `json:"mode"`
	BackendConfigured bool   `json:"backend_configured"`
	ActiveRuns        int    `json:"active_runs"`
	MaxActiveRuns     int    `json:"max_active_runs"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.run_policy.decision"),
		rego.Module("run_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the run policy.
// Returns: decision (allow, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, in Input) (string, string, error) {
	input := map[string]interface{}{
		"run_key":            in.RunKey,
		"mode":               in.Mode,
		"backend_configured": in.BackendConfigured,
		"active_runs":        in.ActiveRuns,
		"max_active_runs":    in.MaxActiveRuns,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]interface{}:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			decision = DecisionAllow
		}
		return decision, reason, nil
	}
	return DecisionAllow, "unexpected return type", nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package run_policy

default decision := {"decision": "allow"}

# A stream run needs somewhere to stream from.
decision := {"decision": "block", "reason": "no streaming backend configured"} if {
	input.mode == "stream"
	not input.backend_configured
} else := {"decision": "block", "reason": "too many active runs"} if {
	input.max_active_runs > 0
	input.active_runs >= input.max_active_runs
}
`
