// Package engine executes validated operation requests as ordered plans of
// backend calls, emitting step events and driving the run state machine.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/procureflow/agent/internal/domain"
)

// Outputs holds the success payloads of completed steps, keyed by step name.
// Later steps read them to build their inputs; a plan is strictly sequential
// because of exactly these data dependencies.
type Outputs map[string]json.RawMessage

// String extracts a string field from a prior step's payload.
func (o Outputs) String(step, field string) (string, error) {
	raw, ok := o[step]
	if !ok {
		return "", fmt.Errorf("no output recorded for step %s", step)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("step %s output is not an object: %w", step, err)
	}
	switch v := payload[field].(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	}
	return "", fmt.Errorf("step %s output has no %s field", step, field)
}

// inputFunc builds a step's backend input from the request slots and the
// outputs of earlier steps.
type inputFunc func(req domain.OperationRequest, prior Outputs) (map[string]any, error)

// PlanStep describes one backend call in a plan: the remote operation, its
// fatality flag and an optional compensating operation invoked when a later
// fatal failure aborts the plan.
type PlanStep struct {
	Name            string
	Operation       string
	Fatal           bool
	Input           inputFunc
	Compensate      string
	CompensateInput inputFunc
}

// BuildPlan maps a plan variant to its ordered step sequence. The switch is
// the single place plans exist; adding an intent means adding a case.
func BuildPlan(kind domain.PlanKind) ([]PlanStep, error) {
	switch kind {
	case domain.PlanCreatePurchaseOrder:
		return []PlanStep{
			{
				Name:      "create_document",
				Operation: "po.create",
				Fatal:     true,
				Input:     slotInput("supplier", "material", "quantity", "plant"),
				// A created but unreleased document is cleaned up if release
				// aborts the plan.
				Compensate: "po.delete",
				CompensateInput: func(_ domain.OperationRequest, prior Outputs) (map[string]any, error) {
					doc, err := prior.String("create_document", "documentNumber")
					if err != nil {
						return nil, err
					}
					return map[string]any{"documentNumber": doc}, nil
				},
			},
			{
				Name:      "release_document",
				Operation: "po.release",
				Fatal:     true,
				Input: func(_ domain.OperationRequest, prior Outputs) (map[string]any, error) {
					doc, err := prior.String("create_document", "documentNumber")
					if err != nil {
						return nil, err
					}
					return map[string]any{"documentNumber": doc}, nil
				},
			},
		}, nil

	case domain.PlanUpdatePurchaseOrderItem:
		return []PlanStep{
			{
				Name:      "update_item",
				Operation: "po.updateItem",
				Fatal:     true,
				Input:     slotInput("poNumber", "item", "quantity"),
			},
		}, nil

	case domain.PlanUpdatePurchaseOrder:
		return []PlanStep{
			{
				Name:      "update_header",
				Operation: "po.updateHeader",
				Fatal:     true,
				Input:     slotInput("poNumber", "paymentTerms", "currency"),
			},
			{
				// Repricing failures leave a consistent header update behind,
				// so they do not abort the intent.
				Name:      "update_pricing",
				Operation: "po.updatePricing",
				Fatal:     false,
				Input:     slotInput("poNumber", "priceAmount", "currency"),
			},
		}, nil

	case domain.PlanGetPurchaseOrderStatus:
		return []PlanStep{
			{
				Name:      "fetch_document",
				Operation: "po.get",
				Fatal:     true,
				Input:     slotInput("poNumber"),
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown plan kind %q", kind)
}

// slotInput copies the named slots into the step input, skipping absent
// optional ones.
func slotInput(names ...string) inputFunc {
	return func(req domain.OperationRequest, _ Outputs) (map[string]any, error) {
		input := make(map[string]any, len(names))
		for _, name := range names {
			if v, ok := req.Slots[name]; ok {
				input[name] = v
			}
		}
		return input, nil
	}
}
