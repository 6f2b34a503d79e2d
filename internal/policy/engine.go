// Package policy gates resolved operation requests with an OPA policy before
// a run is created. Blocked operations are surfaced conversationally; no run
// ever exists for them.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/procureflow/agent/internal/domain"
)

// Engine evaluates the procurement operation policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the policy for evaluation.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.procurement.decision"),
		rego.Module("procurement.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// Evaluate checks an operation request against the policy. It returns
// whether the operation may execute and, when blocked, the policy's reason.
func (e *Engine) Evaluate(ctx context.Context, req domain.OperationRequest) (bool, string, error) {
	input := map[string]any{
		"intent": req.IntentName,
		"slots":  req.Slots,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The default rule should always produce a decision.
		return true, "", nil
	}

	decision, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return false, "", fmt.Errorf("policy returned unexpected decision type %T", results[0].Expressions[0].Value)
	}
	allowed, _ := decision["allow"].(bool)
	reason, _ := decision["reason"].(string)
	return allowed, reason, nil
}

// DefaultPolicy is the built-in operation policy. Quantity and price caps
// force large commitments through manual purchasing instead of the agent.
const DefaultPolicy = `
package procurement

default decision = {"allow": true}

decision = {"allow": false, "reason": "quantities above 10000 require manual purchasing"} {
	input.slots.quantity > 10000
}

decision = {"allow": false, "reason": "price changes above 250000 require manual purchasing"} {
	input.intent == "updatePurchaseOrder"
	input.slots.priceAmount > 250000
}
`
