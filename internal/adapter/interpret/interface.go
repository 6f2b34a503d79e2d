// Package interpret provides the language understanding boundary: given raw
// user text, recent conversation turns and the intent catalog, produce a
// candidate intent with extracted slots, or a signal that clarification is
// needed. Output is untrusted; the resolver is the sole validation gate.
package interpret

import (
	"context"

	"github.com/procureflow/agent/internal/domain"
)

// Request carries the inputs of one interpretation pass.
type Request struct {
	Text    string
	History []domain.Turn
	Intents []domain.IntentSummary
}

// Interpretation is a candidate mapping of user text onto the catalog. Slots
// may be partial, mistyped or invented; nothing here is schema-valid until
// the resolver says so.
type Interpretation struct {
	IntentName         string         `json:"intent_name,omitempty"`
	Slots              map[string]any `json:"slots,omitempty"`
	Confidence         float64        `json:"confidence,omitempty"`
	Ambiguous          bool           `json:"ambiguous,omitempty"`
	ClarifyingQuestion string         `json:"clarifying_question,omitempty"`
}

// Interpreter is the understanding adapter contract.
type Interpreter interface {
	Interpret(ctx context.Context, req Request) (*Interpretation, error)
}
