// Package stream fans persisted step events out to per-run subscribers,
// replaying history from the store on (re)connect before switching to live
// delivery.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/procureflow/agent/internal/domain"
	"github.com/procureflow/agent/internal/store"
)

// Item is one element of a run's event stream: either a step event or the
// final run-status marker that terminates the stream.
type Item struct {
	Event  *domain.StepEvent `json:"event,omitempty"`
	Status *domain.RunStatus `json:"status,omitempty"`
}

type subscriber struct {
	ch     chan Item
	closed bool
}

// Broadcaster delivers step events to subscribers in emission order.
// Execution is decoupled from delivery: publishing never blocks, and a
// subscriber that cannot keep up is closed so it can reconnect and replay
// from its last seen sequence number.
type Broadcaster struct {
	store  store.Store
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewBroadcaster creates a broadcaster backed by the given store for replay.
func NewBroadcaster(st store.Store, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		store:  st,
		logger: logger,
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// PublishEvent delivers a persisted step event to the run's subscribers.
func (b *Broadcaster) PublishEvent(ev domain.StepEvent) {
	b.publish(ev.RunID, Item{Event: &ev})
}

// PublishStatus delivers the terminal status marker to the run's subscribers.
func (b *Broadcaster) PublishStatus(runID string, status domain.RunStatus) {
	b.publish(runID, Item{Status: &status})
}

func (b *Broadcaster) publish(runID string, it Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[runID] {
		select {
		case sub.ch <- it:
		default:
			// Buffer full: the subscriber is too slow, close it so the
			// client reconnects with its last seen sequence.
			b.logger.Warn("dropping slow stream subscriber", "run_id", runID)
			b.dropLocked(runID, sub)
		}
	}
}

func (b *Broadcaster) add(runID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[*subscriber]struct{})
	}
	b.subs[runID][sub] = struct{}{}
}

func (b *Broadcaster) remove(runID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(runID, sub)
}

func (b *Broadcaster) dropLocked(runID string, sub *subscriber) {
	if set, ok := b.subs[runID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, runID)
			}
		}
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Subscribe attaches to a run's event stream. Events with seq > lastSeen are
// replayed from the store first, then live events follow, deduplicated by
// sequence number so the hand-off delivers no event twice and skips none.
// The returned channel closes after the final status marker, on context
// cancellation, or when the subscriber falls too far behind.
func (b *Broadcaster) Subscribe(ctx context.Context, runID string, lastSeen int64) (<-chan Item, error) {
	run, err := b.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	// Register before replaying so nothing published during replay is lost;
	// the seq dedupe below absorbs the overlap.
	sub := &subscriber{ch: make(chan Item, 64)}
	b.add(runID, sub)

	out := make(chan Item, 16)
	go b.forward(ctx, runID, lastSeen, sub, out)
	return out, nil
}

func (b *Broadcaster) forward(ctx context.Context, runID string, lastSeen int64, sub *subscriber, out chan<- Item) {
	defer close(out)
	defer b.remove(runID, sub)

	last := lastSeen
	events, err := b.store.ListStepEvents(ctx, runID, last)
	if err != nil {
		b.logger.Error("stream replay failed", "run_id", runID, "error", err)
		return
	}
	for i := range events {
		if !send(ctx, out, Item{Event: &events[i]}) {
			return
		}
		last = events[i].Seq
	}

	run, err := b.store.GetRun(ctx, runID)
	if err != nil {
		b.logger.Error("stream replay failed", "run_id", runID, "error", err)
		return
	}
	if run != nil && run.Status.Terminal() {
		// The run finished while we replayed. Events committed between the
		// replay read and the status check would be lost with the live
		// channel never drained, so list the tail before the marker.
		tail, err := b.store.ListStepEvents(ctx, runID, last)
		if err != nil {
			b.logger.Error("stream replay failed", "run_id", runID, "error", err)
			return
		}
		for i := range tail {
			if !send(ctx, out, Item{Event: &tail[i]}) {
				return
			}
		}
		send(ctx, out, Item{Status: &run.Status})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case it, ok := <-sub.ch:
			if !ok {
				return
			}
			if it.Event != nil {
				if it.Event.Seq <= last {
					continue
				}
				last = it.Event.Seq
			}
			if !send(ctx, out, it) {
				return
			}
			if it.Status != nil {
				return
			}
		}
	}
}

func send(ctx context.Context, out chan<- Item, it Item) bool {
	select {
	case out <- it:
		return true
	case <-ctx.Done():
		return false
	}
}
