package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/procureflow/agent/internal/domain"
	"github.com/procureflow/agent/internal/store"
	"github.com/procureflow/agent/tests/helpers"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *store.SQLiteStore) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBroadcaster(st, logger), st
}

func seedRun(t *testing.T, st store.Store, runID string, status domain.RunStatus, eventCount int) {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateRun(ctx, &domain.Run{
		RunID:          runID,
		ConversationID: "c1",
		Request: domain.OperationRequest{
			IntentName:  "getPurchaseOrderStatus",
			Slots:       map[string]any{"poNumber": "4500000123"},
			RequestedAt: time.Now().UTC(),
		},
		Status:    domain.RunStatusPending,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	for i := 1; i <= eventCount; i++ {
		if err := st.AppendStepEvent(ctx, &domain.StepEvent{
			RunID:     runID,
			Seq:       int64(i),
			StepIndex: 1,
			PlanSize:  1,
			StepName:  "fetch_document",
			Outcome:   domain.StepOutcomeStarted,
			EmittedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("AppendStepEvent failed: %v", err)
		}
	}
	if status != domain.RunStatusPending {
		if err := st.UpdateRunStatus(ctx, runID, domain.RunStatusRunning, nil); err != nil {
			t.Fatalf("UpdateRunStatus failed: %v", err)
		}
		if status != domain.RunStatusRunning {
			if err := st.UpdateRunStatus(ctx, runID, status, nil); err != nil {
				t.Fatalf("UpdateRunStatus failed: %v", err)
			}
		}
	}
}

func recvItem(t *testing.T, ch <-chan Item) (Item, bool) {
	t.Helper()
	select {
	case it, ok := <-ch:
		return it, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream item")
		return Item{}, false
	}
}

func TestSubscribeUnknownRun(t *testing.T) {
	b, _ := newTestBroadcaster(t)
	_, err := b.Subscribe(context.Background(), "nope", 0)
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestSubscribeReplaysFromLastSeen(t *testing.T) {
	b, st := newTestBroadcaster(t)
	seedRun(t, st, "r1", domain.RunStatusRunning, 4)

	ch, err := b.Subscribe(context.Background(), "r1", 2)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for _, wantSeq := range []int64{3, 4} {
		it, ok := recvItem(t, ch)
		if !ok || it.Event == nil {
			t.Fatalf("expected event seq %d, got %+v", wantSeq, it)
		}
		if it.Event.Seq != wantSeq {
			t.Fatalf("expected seq %d, got %d", wantSeq, it.Event.Seq)
		}
	}
}

func TestSubscribeTerminalRunEndsWithStatus(t *testing.T) {
	b, st := newTestBroadcaster(t)
	seedRun(t, st, "r1", domain.RunStatusSucceeded, 2)

	ch, err := b.Subscribe(context.Background(), "r1", 0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var seqs []int64
	for {
		it, ok := recvItem(t, ch)
		if !ok {
			t.Fatal("stream closed before status marker")
		}
		if it.Status != nil {
			if *it.Status != domain.RunStatusSucceeded {
				t.Fatalf("expected succeeded marker, got %s", *it.Status)
			}
			break
		}
		seqs = append(seqs, it.Event.Seq)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("unexpected replayed seqs: %v", seqs)
	}

	if _, ok := <-ch; ok {
		t.Fatal("stream must close after the status marker")
	}
}

func TestSubscribeHandsOffReplayToLive(t *testing.T) {
	b, st := newTestBroadcaster(t)
	seedRun(t, st, "r1", domain.RunStatusRunning, 2)

	ch, err := b.Subscribe(context.Background(), "r1", 0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Drain the replayed prefix.
	for _, wantSeq := range []int64{1, 2} {
		it, _ := recvItem(t, ch)
		if it.Event == nil || it.Event.Seq != wantSeq {
			t.Fatalf("expected replayed seq %d, got %+v", wantSeq, it)
		}
	}

	// A re-publish of an already-replayed event must be deduplicated, live
	// events past the replay point must come through.
	b.PublishEvent(domain.StepEvent{RunID: "r1", Seq: 2, StepIndex: 1, PlanSize: 1, Outcome: domain.StepOutcomeStarted})
	b.PublishEvent(domain.StepEvent{RunID: "r1", Seq: 3, StepIndex: 1, PlanSize: 1, Outcome: domain.StepOutcomeSucceeded})
	b.PublishStatus("r1", domain.RunStatusSucceeded)

	it, _ := recvItem(t, ch)
	if it.Event == nil || it.Event.Seq != 3 {
		t.Fatalf("expected live seq 3 after dedupe, got %+v", it)
	}
	it, _ = recvItem(t, ch)
	if it.Status == nil || *it.Status != domain.RunStatusSucceeded {
		t.Fatalf("expected status marker, got %+v", it)
	}
	if _, ok := <-ch; ok {
		t.Fatal("stream must close after the status marker")
	}
}

// pausingStore runs a hook once after the first ListStepEvents call, so a
// test can commit writes in the window between the replay read and the
// broadcaster's status check.
type pausingStore struct {
	store.Store
	mu        sync.Mutex
	afterList func()
}

func (p *pausingStore) ListStepEvents(ctx context.Context, runID string, sinceSeq int64) ([]domain.StepEvent, error) {
	events, err := p.Store.ListStepEvents(ctx, runID, sinceSeq)
	p.mu.Lock()
	fn := p.afterList
	p.afterList = nil
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
	return events, err
}

func TestSubscribeDeliversEventsCommittedDuringReplay(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	seedRun(t, st, "r1", domain.RunStatusRunning, 2)

	// After the replay read returns seqs 1-2, a third event lands and the
	// run turns terminal before the broadcaster checks the status.
	ps := &pausingStore{Store: st}
	ps.afterList = func() {
		if err := st.AppendStepEvent(context.Background(), &domain.StepEvent{
			RunID:     "r1",
			Seq:       3,
			StepIndex: 1,
			PlanSize:  1,
			StepName:  "fetch_document",
			Outcome:   domain.StepOutcomeSucceeded,
			EmittedAt: time.Now().UTC(),
		}); err != nil {
			t.Errorf("AppendStepEvent failed: %v", err)
		}
		if err := st.UpdateRunStatus(context.Background(), "r1", domain.RunStatusSucceeded, nil); err != nil {
			t.Errorf("UpdateRunStatus failed: %v", err)
		}
	}
	b := NewBroadcaster(ps, logger)

	ch, err := b.Subscribe(context.Background(), "r1", 0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var seqs []int64
	for {
		it, ok := recvItem(t, ch)
		if !ok {
			t.Fatal("stream closed before status marker")
		}
		if it.Status != nil {
			break
		}
		seqs = append(seqs, it.Event.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("events skipped around the terminal marker, got seqs %v", seqs)
	}
}

func TestSubscribeContextCancellation(t *testing.T) {
	b, st := newTestBroadcaster(t)
	seedRun(t, st, "r1", domain.RunStatusRunning, 0)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "r1", 0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// A buffered item may still arrive; the channel must close next.
			if _, ok := <-ch; ok {
				t.Fatal("stream must close after context cancellation")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after context cancellation")
	}
}
