// Package domain defines the core domain records for the procurement agent.
package domain

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusPending         RunStatus = "pending"
	RunStatusRunning         RunStatus = "running"
	RunStatusSucceeded       RunStatus = "succeeded"
	RunStatusPartiallyFailed RunStatus = "partially_failed"
	RunStatusFailed          RunStatus = "failed"
	RunStatusCancelled       RunStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal runs are never
// re-executed and their status is never rolled back.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusPartiallyFailed, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a run may move from one status to another.
// Statuses move monotonically: pending -> running -> terminal, with
// cancellation and failure allowed before the first step dispatches.
func CanTransition(from, to RunStatus) bool {
	switch from {
	case RunStatusPending:
		return to == RunStatusRunning || to == RunStatusCancelled || to == RunStatusFailed
	case RunStatusRunning:
		return to.Terminal()
	}
	return false
}

// StepOutcome represents the lifecycle transition a step event records.
type StepOutcome string

const (
	StepOutcomeStarted   StepOutcome = "started"
	StepOutcomeSucceeded StepOutcome = "succeeded"
	StepOutcomeFailed    StepOutcome = "failed"
	StepOutcomeSkipped   StepOutcome = "skipped"
)

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	TurnRoleUser          TurnRole = "user"
	TurnRoleAssistant     TurnRole = "assistant"
	TurnRoleClarification TurnRole = "system_clarification"
)

// PlanKind tags the executable plan variant an intent maps to. The set of
// variants is closed; adding an intent means adding a variant here and a case
// in the plan builder.
type PlanKind string

const (
	PlanCreatePurchaseOrder     PlanKind = "create_purchase_order"
	PlanUpdatePurchaseOrderItem PlanKind = "update_purchase_order_item"
	PlanUpdatePurchaseOrder     PlanKind = "update_purchase_order"
	PlanGetPurchaseOrderStatus  PlanKind = "get_purchase_order_status"
)
