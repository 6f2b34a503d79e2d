package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/procureflow/agent/internal/domain"
	"github.com/procureflow/agent/internal/intent"
	"github.com/procureflow/agent/internal/store"
)

// Backend invokes one named remote operation. Business failures come back as
// *domain.BackendError.
type Backend interface {
	Call(ctx context.Context, op string, input map[string]any) (json.RawMessage, error)
}

// Publisher receives step events and the final status marker as they are
// persisted. Delivery is decoupled from execution; a slow or absent
// subscriber never blocks a run.
type Publisher interface {
	PublishEvent(event domain.StepEvent)
	PublishStatus(runID string, status domain.RunStatus)
}

// Engine executes operation requests. One executor is active per run,
// enforced by the at-most-once gate on the run id; separate runs execute
// concurrently with no shared state beyond the store.
type Engine struct {
	store    store.Store
	backend  Backend
	registry *intent.Registry
	pub      Publisher
	logger   *slog.Logger

	mu      sync.Mutex
	handles map[string]*runHandle
}

type runHandle struct {
	cancelled atomic.Bool
}

// New creates an engine.
func New(st store.Store, backend Backend, registry *intent.Registry, pub Publisher, logger *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		backend:  backend,
		registry: registry,
		pub:      pub,
		logger:   logger,
		handles:  make(map[string]*runHandle),
	}
}

// Start creates the run and executes it asynchronously, returning the run
// record immediately. If the run id already exists the stored run is returned
// without executing anything.
func (e *Engine) Start(ctx context.Context, runID string, req domain.OperationRequest) (*domain.Run, error) {
	run, created, err := e.prepare(ctx, runID, req)
	if err != nil || !created {
		return run, err
	}
	go func() {
		if err := e.run(context.Background(), run, req); err != nil {
			e.logger.Error("run execution failed", "run_id", runID, "error", err)
		}
	}()
	return run, nil
}

// Execute creates the run and executes it synchronously. Invoking Execute
// again with a run id that already reached a terminal status performs zero
// backend calls and returns the stored run.
func (e *Engine) Execute(ctx context.Context, runID string, req domain.OperationRequest) (*domain.Run, error) {
	run, created, err := e.prepare(ctx, runID, req)
	if err != nil || !created {
		return run, err
	}
	if err := e.run(ctx, run, req); err != nil {
		return nil, err
	}
	return e.store.GetRun(ctx, runID)
}

// prepare is the at-most-once gate: it either creates a fresh pending run and
// claims the executor slot, or returns the existing run untouched.
func (e *Engine) prepare(ctx context.Context, runID string, req domain.OperationRequest) (*domain.Run, bool, error) {
	existing, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get run: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	run := &domain.Run{
		RunID:          runID,
		ConversationID: req.ConversationID,
		Request:        req,
		Status:         domain.RunStatusPending,
		StartedAt:      time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, domain.ErrDuplicateRun) {
			// Lost the creation race; the winner owns the executor slot.
			stored, getErr := e.store.GetRun(ctx, runID)
			if getErr != nil {
				return nil, false, getErr
			}
			return stored, false, nil
		}
		return nil, false, fmt.Errorf("failed to create run: %w", err)
	}

	e.mu.Lock()
	e.handles[runID] = &runHandle{}
	e.mu.Unlock()
	return run, true, nil
}

// Cancel requests cancellation of a run. An active executor observes the flag
// at its next step boundary; a run without an executor (pending, or orphaned
// by a restart) is finalized directly from its event log. Cancelling a
// terminal run is a no-op.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	e.mu.Lock()
	h, active := e.handles[runID]
	e.mu.Unlock()
	if active {
		h.cancelled.Store(true)
		return nil
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	if run.Status.Terminal() {
		return nil
	}
	return e.finalizeCancelled(ctx, run)
}

func (e *Engine) cancelRequested(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[runID]
	return ok && h.cancelled.Load()
}

func (e *Engine) releaseHandle(runID string) {
	e.mu.Lock()
	delete(e.handles, runID)
	e.mu.Unlock()
}

// run executes the plan for a freshly created run. It is the only writer of
// the run's event log and status.
func (e *Engine) run(ctx context.Context, run *domain.Run, req domain.OperationRequest) error {
	defer e.releaseHandle(run.RunID)
	logger := e.logger.With("run_id", run.RunID, "intent", req.IntentName)

	def, err := e.registry.Lookup(req.IntentName)
	if err != nil {
		return e.finish(ctx, run.RunID, domain.RunStatusFailed, errDetail("unknown_intent", err), logger)
	}
	plan, err := BuildPlan(def.Plan)
	if err != nil {
		return e.finish(ctx, run.RunID, domain.RunStatusFailed, errDetail("invalid_plan", err), logger)
	}

	em := &emitter{engine: e, runID: run.RunID, planSize: len(plan)}
	prior := make(Outputs, len(plan))
	var log []domain.StepEvent

	if err := e.store.UpdateRunStatus(ctx, run.RunID, domain.RunStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	for i, step := range plan {
		if e.cancelRequested(run.RunID) {
			for j := i; j < len(plan); j++ {
				ev, err := em.emit(ctx, j+1, plan[j].Name, domain.StepOutcomeSkipped, false,
					json.RawMessage(`{"reason":"cancelled by caller"}`))
				if err != nil {
					return e.contractViolation(ctx, run.RunID, err, logger)
				}
				log = append(log, ev)
			}
			return e.finish(ctx, run.RunID, domain.RunStatusCancelled, nil, logger)
		}

		ev, err := em.emit(ctx, i+1, step.Name, domain.StepOutcomeStarted, false, nil)
		if err != nil {
			return e.contractViolation(ctx, run.RunID, err, logger)
		}
		log = append(log, ev)

		payload, stepErr := e.invoke(ctx, step, req, prior)
		if stepErr == nil {
			prior[step.Name] = payload
			ev, err := em.emit(ctx, i+1, step.Name, domain.StepOutcomeSucceeded, false, payload)
			if err != nil {
				return e.contractViolation(ctx, run.RunID, err, logger)
			}
			log = append(log, ev)
			continue
		}

		be := domain.AsBackendError(stepErr)
		detail, _ := json.Marshal(be)
		logger.Warn("step failed", "step", step.Name, "fatal", step.Fatal, "code", be.Code)
		ev, err = em.emit(ctx, i+1, step.Name, domain.StepOutcomeFailed, step.Fatal, detail)
		if err != nil {
			return e.contractViolation(ctx, run.RunID, err, logger)
		}
		log = append(log, ev)

		if step.Fatal {
			e.compensate(ctx, plan[:i], req, prior, em, logger)
			return e.finish(ctx, run.RunID, domain.RunStatusFailed, detail, logger)
		}
	}

	return e.finish(ctx, run.RunID, ReduceStatus(log), nil, logger)
}

func (e *Engine) invoke(ctx context.Context, step PlanStep, req domain.OperationRequest, prior Outputs) (json.RawMessage, error) {
	input, err := step.Input(req, prior)
	if err != nil {
		return nil, &domain.BackendError{Code: "input_error", Message: err.Error(), Severity: "error"}
	}
	return e.backend.Call(ctx, step.Operation, input)
}

// compensate undoes already-succeeded steps in reverse order after a fatal
// abort. Compensation is best effort: failures are logged as step events but
// never change the run's terminal status.
func (e *Engine) compensate(ctx context.Context, done []PlanStep, req domain.OperationRequest, prior Outputs, em *emitter, logger *slog.Logger) {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == "" {
			continue
		}
		if _, ok := prior[step.Name]; !ok {
			continue
		}
		name := "compensate:" + step.Name
		if _, err := em.emit(ctx, 0, name, domain.StepOutcomeStarted, false, nil); err != nil {
			logger.Error("failed to record compensation event", "step", name, "error", err)
			return
		}
		input, err := step.CompensateInput(req, prior)
		var payload json.RawMessage
		if err == nil {
			payload, err = e.backend.Call(ctx, step.Compensate, input)
		}
		if err != nil {
			be := domain.AsBackendError(err)
			detail, _ := json.Marshal(be)
			logger.Warn("compensation failed", "step", name, "code", be.Code)
			if _, err := em.emit(ctx, 0, name, domain.StepOutcomeFailed, false, detail); err != nil {
				logger.Error("failed to record compensation event", "step", name, "error", err)
				return
			}
			continue
		}
		if _, err := em.emit(ctx, 0, name, domain.StepOutcomeSucceeded, false, payload); err != nil {
			logger.Error("failed to record compensation event", "step", name, "error", err)
			return
		}
	}
}

// finish records the terminal status, finalizing what ReduceStatus would
// derive from the log, and publishes the status marker.
func (e *Engine) finish(ctx context.Context, runID string, status domain.RunStatus, errData json.RawMessage, logger *slog.Logger) error {
	if err := e.store.UpdateRunStatus(ctx, runID, status, errData); err != nil {
		return fmt.Errorf("failed to record terminal status: %w", err)
	}
	logger.Info("run finished", "status", status)
	if e.pub != nil {
		e.pub.PublishStatus(runID, status)
	}
	return nil
}

// finalizeCancelled cancels a run that has no active executor, emitting
// skipped events for every plan step the log shows no terminal outcome for.
func (e *Engine) finalizeCancelled(ctx context.Context, run *domain.Run) error {
	def, err := e.registry.Lookup(run.Request.IntentName)
	if err != nil {
		return err
	}
	plan, err := BuildPlan(def.Plan)
	if err != nil {
		return err
	}
	events, err := e.store.ListStepEvents(ctx, run.RunID, 0)
	if err != nil {
		return err
	}

	terminal := make(map[int]bool)
	var seq int64
	for _, ev := range events {
		seq = ev.Seq
		if ev.StepIndex > 0 && ev.Outcome != domain.StepOutcomeStarted {
			terminal[ev.StepIndex] = true
		}
	}

	em := &emitter{engine: e, runID: run.RunID, planSize: len(plan), seq: seq}
	for i, step := range plan {
		if terminal[i+1] {
			continue
		}
		if _, err := em.emit(ctx, i+1, step.Name, domain.StepOutcomeSkipped, false,
			json.RawMessage(`{"reason":"cancelled by caller"}`)); err != nil {
			return err
		}
	}
	return e.finish(ctx, run.RunID, domain.RunStatusCancelled, nil, e.logger.With("run_id", run.RunID))
}

// contractViolation handles a store-contract failure mid-run. These indicate
// a programming error; the executor aborts and surfaces the error instead of
// retrying.
func (e *Engine) contractViolation(ctx context.Context, runID string, err error, logger *slog.Logger) error {
	logger.Error("store contract violation", "error", err)
	// Best effort terminal mark so the run is not stuck in running.
	_ = e.store.UpdateRunStatus(ctx, runID, domain.RunStatusFailed, errDetail("engine_error", err))
	if e.pub != nil {
		e.pub.PublishStatus(runID, domain.RunStatusFailed)
	}
	return err
}

// emitter assigns the per-run sequence numbers, starting at 1 with no gaps,
// and fans each persisted event out to the publisher.
type emitter struct {
	engine   *Engine
	runID    string
	planSize int
	seq      int64
}

func (em *emitter) emit(ctx context.Context, stepIndex int, stepName string, outcome domain.StepOutcome, fatal bool, detail json.RawMessage) (domain.StepEvent, error) {
	em.seq++
	ev := domain.StepEvent{
		RunID:     em.runID,
		Seq:       em.seq,
		StepIndex: stepIndex,
		PlanSize:  em.planSize,
		StepName:  stepName,
		Outcome:   outcome,
		Fatal:     fatal,
		Detail:    detail,
		EmittedAt: time.Now().UTC(),
	}
	if err := em.engine.store.AppendStepEvent(ctx, &ev); err != nil {
		return ev, err
	}
	if em.engine.pub != nil {
		em.engine.pub.PublishEvent(ev)
	}
	return ev, nil
}

func errDetail(code string, err error) json.RawMessage {
	detail, _ := json.Marshal(domain.BackendError{Code: code, Message: err.Error(), Severity: "error"})
	return detail
}
