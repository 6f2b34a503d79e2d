package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procureflow/agent/internal/domain"
)

// MessageResultKind tags what a message intake produced.
type MessageResultKind string

const (
	// MessageResultClarification means the user must answer a question.
	MessageResultClarification MessageResultKind = "clarification"
	// MessageResultRejected means the request cannot be executed.
	MessageResultRejected MessageResultKind = "rejected"
	// MessageResultRunStarted means a run was created and is executing.
	MessageResultRunStarted MessageResultKind = "run_started"
)

// MessageResult is the outcome of one user message.
type MessageResult struct {
	Kind  MessageResultKind `json:"kind"`
	Reply string            `json:"reply"`
	RunID string            `json:"run_id,omitempty"`
	Run   *domain.Run       `json:"run,omitempty"`
}

// HandleMessage processes one user message in a conversation: append the
// turn, resolve it against the intent catalog, and either ask for
// clarification, reject, or gate the resolved operation through policy and
// start a run. Resolution failures are conversational replies, never hard
// errors; no run exists for them.
func (s *Service) HandleMessage(ctx context.Context, conversationID, text string) (*MessageResult, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	history, err := s.store.GetTurns(ctx, conversationID, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if err := s.appendTurn(ctx, conversationID, "", domain.TurnRoleUser, text); err != nil {
		return nil, fmt.Errorf("failed to append user turn: %w", err)
	}

	res, err := s.resolver.Resolve(ctx, conversationID, text, history)
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case domain.ResolutionNeedsClarification:
		if err := s.appendTurn(ctx, conversationID, "", domain.TurnRoleClarification, res.Prompt); err != nil {
			s.logger.Error("failed to append clarification turn", "error", err)
		}
		return &MessageResult{Kind: MessageResultClarification, Reply: res.Prompt}, nil

	case domain.ResolutionRejected:
		if err := s.appendTurn(ctx, conversationID, "", domain.TurnRoleAssistant, res.Prompt); err != nil {
			s.logger.Error("failed to append assistant turn", "error", err)
		}
		return &MessageResult{Kind: MessageResultRejected, Reply: res.Prompt}, nil
	}

	req := *res.Request
	allowed, reason, err := s.policy.Evaluate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !allowed {
		reply := "I can't execute that: " + reason
		if err := s.appendTurn(ctx, conversationID, "", domain.TurnRoleAssistant, reply); err != nil {
			s.logger.Error("failed to append assistant turn", "error", err)
		}
		s.logger.Info("operation blocked by policy", "intent", req.IntentName, "reason", reason)
		return &MessageResult{Kind: MessageResultRejected, Reply: reply}, nil
	}

	runID := "run_" + uuid.New().String()[:8]
	run, err := s.engine.Start(ctx, runID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	reply := fmt.Sprintf("Working on it: %s (run %s).", req.IntentName, runID)
	if err := s.appendTurn(ctx, conversationID, runID, domain.TurnRoleAssistant, reply); err != nil {
		s.logger.Error("failed to append assistant turn", "error", err)
	}
	return &MessageResult{Kind: MessageResultRunStarted, Reply: reply, RunID: runID, Run: run}, nil
}

// GetTurns returns a conversation's turn history, oldest first.
func (s *Service) GetTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	return s.store.GetTurns(ctx, conversationID, limit)
}

func (s *Service) appendTurn(ctx context.Context, conversationID, runID string, role domain.TurnRole, text string) error {
	return s.store.AppendTurn(ctx, &domain.Turn{
		TurnID:         "turn_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		RunID:          runID,
		Role:           role,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	})
}
