package domain

// ResolutionOutcome tags the result of one resolver pass.
type ResolutionOutcome string

const (
	ResolutionResolved           ResolutionOutcome = "resolved"
	ResolutionNeedsClarification ResolutionOutcome = "needs_clarification"
	ResolutionRejected           ResolutionOutcome = "rejected"
)

// RejectReason explains why a resolution was rejected.
type RejectReason string

const (
	RejectReasonUnknownIntent   RejectReason = "unknown_intent"
	RejectReasonTooManyAttempts RejectReason = "too_many_attempts"
)

// FieldError records a per-field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Resolution is the outcome of resolving one user utterance. Exactly one of
// the three variants applies:
//
//   - Resolved: Request is set and fully validated.
//   - NeedsClarification: MissingSlots/FieldErrors name the problem fields and
//     Prompt is the question to surface to the user.
//   - Rejected: Reason explains the failure; the text could not be mapped to a
//     registered intent, or the clarification budget is exhausted.
type Resolution struct {
	Outcome      ResolutionOutcome `json:"outcome"`
	Request      *OperationRequest `json:"request,omitempty"`
	IntentGuess  string            `json:"intent_guess,omitempty"`
	MissingSlots []string          `json:"missing_slots,omitempty"`
	FieldErrors  []FieldError      `json:"field_errors,omitempty"`
	Prompt       string            `json:"prompt,omitempty"`
	Reason       RejectReason      `json:"reason,omitempty"`
}

// Resolved wraps a validated operation request.
func Resolved(req OperationRequest) Resolution {
	return Resolution{Outcome: ResolutionResolved, Request: &req}
}

// NeedsClarification asks the caller to surface prompt and loop back with the
// user's next turn.
func NeedsClarification(guess string, missing []string, fieldErrs []FieldError, prompt string) Resolution {
	return Resolution{
		Outcome:      ResolutionNeedsClarification,
		IntentGuess:  guess,
		MissingSlots: missing,
		FieldErrors:  fieldErrs,
		Prompt:       prompt,
	}
}

// Rejected signals the utterance cannot produce an operation request.
func Rejected(reason RejectReason, prompt string) Resolution {
	return Resolution{Outcome: ResolutionRejected, Reason: reason, Prompt: prompt}
}
