package engine

import "github.com/procureflow/agent/internal/domain"

// ReduceStatus derives a run's status purely from its ordered step event log.
// Replaying the same log always yields the same status; the engine's stored
// status is only ever what this reduction would produce.
//
// Compensation events carry StepIndex 0 and are ignored when deciding whether
// the plan ran to completion.
func ReduceStatus(events []domain.StepEvent) domain.RunStatus {
	if len(events) == 0 {
		return domain.RunStatusPending
	}

	planSize := 0
	terminalByStep := make(map[int]domain.StepOutcome)
	anyFailed := false
	anySucceeded := false

	for _, ev := range events {
		if ev.StepIndex == 0 {
			continue
		}
		if ev.PlanSize > planSize {
			planSize = ev.PlanSize
		}
		switch ev.Outcome {
		case domain.StepOutcomeSkipped:
			// Skipped steps only exist on cancellation.
			return domain.RunStatusCancelled
		case domain.StepOutcomeFailed:
			if ev.Fatal {
				return domain.RunStatusFailed
			}
			anyFailed = true
			terminalByStep[ev.StepIndex] = ev.Outcome
		case domain.StepOutcomeSucceeded:
			anySucceeded = true
			terminalByStep[ev.StepIndex] = ev.Outcome
		}
	}

	if planSize > 0 && len(terminalByStep) == planSize {
		switch {
		case anyFailed && anySucceeded:
			return domain.RunStatusPartiallyFailed
		case anyFailed:
			return domain.RunStatusFailed
		default:
			return domain.RunStatusSucceeded
		}
	}
	return domain.RunStatusRunning
}
