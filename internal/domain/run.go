package domain

import (
	"encoding/json"
	"time"
)

// Run represents one execution attempt of a resolved operation request.
// Exactly one run is created per accepted request; its status only ever moves
// forward through the state machine in CanTransition.
type Run struct {
	RunID          string           `json:"run_id"`
	ConversationID string           `json:"conversation_id"`
	Request        OperationRequest `json:"request"`
	Status         RunStatus        `json:"status"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	Error          json.RawMessage  `json:"error,omitempty"`
}

// StepEvent is an immutable record of one plan step lifecycle transition.
// Seq is strictly increasing per run, starting at 1 with no gaps; the ordered
// event sequence is the canonical execution log for the run.
//
// StepIndex is 1-based within the plan; compensation events carry StepIndex 0
// so status reduction ignores them when deciding plan completeness. PlanSize
// and Fatal are recorded on every event so the run status is derivable from
// the log alone.
type StepEvent struct {
	RunID     string          `json:"run_id"`
	Seq       int64           `json:"seq"`
	StepIndex int             `json:"step_index"`
	PlanSize  int             `json:"plan_size"`
	StepName  string          `json:"step_name"`
	Outcome   StepOutcome     `json:"outcome"`
	Fatal     bool            `json:"fatal,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	EmittedAt time.Time       `json:"emitted_at"`
}
