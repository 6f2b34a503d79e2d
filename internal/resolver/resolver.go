// Package resolver turns free-text user input plus conversation context into
// a fully validated operation request, asking for clarification when required
// slots are missing and rejecting input that cannot be mapped.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/procureflow/agent/internal/adapter/interpret"
	"github.com/procureflow/agent/internal/domain"
	"github.com/procureflow/agent/internal/intent"
)

// DefaultMaxClarifyRounds bounds clarification rounds per turn-chain.
const DefaultMaxClarifyRounds = 3

// Resolver validates understanding-adapter output against the intent
// registry. It is the sole gate in front of OperationRequest construction.
type Resolver struct {
	interp    interpret.Interpreter
	registry  *intent.Registry
	maxRounds int
	logger    *slog.Logger
}

// New creates a resolver. maxRounds <= 0 selects the default bound.
func New(interp interpret.Interpreter, registry *intent.Registry, maxRounds int, logger *slog.Logger) *Resolver {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxClarifyRounds
	}
	return &Resolver{interp: interp, registry: registry, maxRounds: maxRounds, logger: logger}
}

// Resolve maps one user utterance onto the catalog. history is the persisted
// turn sequence before this utterance; the clarification budget is counted
// from the trailing clarification turns in it, so the bound survives process
// restarts. The returned error is non-nil only for adapter transport
// failures; every understanding failure is expressed as a Resolution.
func (r *Resolver) Resolve(ctx context.Context, conversationID, text string, history []domain.Turn) (domain.Resolution, error) {
	rounds := trailingClarifications(history)

	interp, err := r.interp.Interpret(ctx, interpret.Request{
		Text:    text,
		History: history,
		Intents: r.registry.Summaries(),
	})
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("understanding adapter failed: %w", err)
	}

	if interp.Ambiguous {
		if rounds >= r.maxRounds {
			return rejectedTooManyAttempts(), nil
		}
		question := interp.ClarifyingQuestion
		if question == "" {
			question = "Could you rephrase that? I can create, update or check purchase orders."
		}
		return domain.NeedsClarification("", nil, nil, question), nil
	}

	def, err := r.registry.Lookup(interp.IntentName)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownIntent) {
			r.logger.Warn("adapter proposed unregistered intent", "intent", interp.IntentName)
			return domain.Rejected(domain.RejectReasonUnknownIntent,
				"Sorry, that is not something I can do. I can create, update or check purchase orders."), nil
		}
		return domain.Resolution{}, err
	}

	slots, missing, fieldErrs := r.registry.ValidateSlots(def, interp.Slots)
	if len(missing) > 0 || len(fieldErrs) > 0 {
		if rounds >= r.maxRounds {
			return rejectedTooManyAttempts(), nil
		}
		return domain.NeedsClarification(def.Name, missing, fieldErrs, clarifyPrompt(def, missing, fieldErrs)), nil
	}

	return domain.Resolved(domain.OperationRequest{
		IntentName:     def.Name,
		Slots:          slots,
		ConversationID: conversationID,
		RequestedAt:    time.Now().UTC(),
	}), nil
}

func rejectedTooManyAttempts() domain.Resolution {
	return domain.Rejected(domain.RejectReasonTooManyAttempts,
		"I still don't have everything I need after several attempts. Let's start over with a fresh request.")
}

// trailingClarifications counts the clarification turns of the current
// turn-chain: turns since the last completed exchange (marked by an assistant
// turn).
func trailingClarifications(history []domain.Turn) int {
	rounds := 0
	for i := len(history) - 1; i >= 0; i-- {
		switch history[i].Role {
		case domain.TurnRoleClarification:
			rounds++
		case domain.TurnRoleAssistant:
			return rounds
		}
	}
	return rounds
}

// clarifyPrompt asks only about the fields that are missing or invalid;
// already valid fields are never re-asked.
func clarifyPrompt(def domain.IntentDefinition, missing []string, fieldErrs []domain.FieldError) string {
	var sb strings.Builder
	if len(missing) > 0 {
		sb.WriteString("To continue with ")
		sb.WriteString(def.Description)
		sb.WriteString(" I still need: ")
		for i, name := range missing {
			if i > 0 {
				sb.WriteString(", ")
			}
			if spec, ok := def.Field(name); ok && spec.Description != "" {
				fmt.Fprintf(&sb, "%s (%s)", name, spec.Description)
			} else {
				sb.WriteString(name)
			}
		}
		sb.WriteString(".")
	}
	for _, fe := range fieldErrs {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "The value for %s looks wrong: %s.", fe.Field, fe.Message)
	}
	return sb.String()
}
