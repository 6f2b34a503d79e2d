package service

import (
	"context"
	"fmt"

	"github.com/procureflow/agent/internal/domain"
)

// GetRun returns a run by id, or nil when it does not exist.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the runs spawned by a conversation, oldest first.
func (s *Service) ListRuns(ctx context.Context, conversationID string) ([]domain.Run, error) {
	return s.store.ListRuns(ctx, conversationID)
}

// ListStepEvents returns a run's execution log with seq > sinceSeq.
func (s *Service) ListStepEvents(ctx context.Context, runID string, sinceSeq int64) ([]domain.StepEvent, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	return s.store.ListStepEvents(ctx, runID, sinceSeq)
}

// CancelRun requests cancellation of a run. The engine observes the request
// at the next step boundary; in-flight backend calls complete.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	return s.engine.Cancel(ctx, runID)
}
