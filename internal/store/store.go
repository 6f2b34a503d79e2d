// Package store defines the persistence contract for conversations, runs and
// step events, and its SQLite implementation.
package store

import (
	"context"
	"encoding/json"

	"github.com/procureflow/agent/internal/domain"
)

// Store is the persistence contract the core depends on. Conversations and
// step event logs are append-only; run status updates must follow the run
// state machine.
//
// Contract errors: CreateRun fails with domain.ErrDuplicateRun when the run id
// already exists, AppendStepEvent fails with domain.ErrOutOfOrderSequence when
// the sequence number is not exactly previous+1, and UpdateRunStatus fails
// with domain.ErrInvalidTransition when the move is not allowed. All three are
// programming-invariant violations, never retried.
type Store interface {
	// AppendTurn appends a turn, creating the conversation on first use.
	AppendTurn(ctx context.Context, turn *domain.Turn) error
	// GetTurns returns the oldest-first turn history for a conversation.
	// A positive limit keeps the most recent turns.
	GetTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error)

	// CreateRun persists a new run record.
	CreateRun(ctx context.Context, run *domain.Run) error
	// GetRun returns a run by id, or nil when it does not exist.
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	// UpdateRunStatus advances a run's status, stamping finished_at and the
	// error payload once the status is terminal.
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, errData json.RawMessage) error
	// ListRuns returns the runs spawned by a conversation, oldest first.
	ListRuns(ctx context.Context, conversationID string) ([]domain.Run, error)

	// AppendStepEvent appends the next event of a run's execution log.
	AppendStepEvent(ctx context.Context, event *domain.StepEvent) error
	// ListStepEvents returns a run's events with seq > sinceSeq, in order.
	ListStepEvents(ctx context.Context, runID string, sinceSeq int64) ([]domain.StepEvent, error)

	Close() error
}
