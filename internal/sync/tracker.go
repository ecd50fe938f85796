// Package sync keeps a durable history of drain cycles so clients can show
// when the queue was last synced and how many records were lost.
package sync

import (
	"context"
	"time"

	"github.com/maclap/cashtrack/internal/bus"
	"github.com/maclap/cashtrack/internal/outbox"
	"go.uber.org/zap"
)

// LastDrain is the most recent completed drain cycle.
type LastDrain struct {
	At     time.Time     `json:"at"`
	Result outbox.Result `json:"result"`
}

// Totals accumulate over every drain cycle the profile has run.
type Totals struct {
	Cycles  int `json:"cycles"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// History is the persisted drain history.
type History struct {
	Last   *LastDrain
	Totals Totals
}

// Tracker subscribes to sync.completed events and records them.
type Tracker struct {
	rec    *Reconciler
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a new sync tracker.
func NewTracker(store Checkpointer, b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{
		rec:    NewReconciler(store),
		bus:    b,
		logger: logger,
		now:    time.Now,
	}
}

// Start subscribes to drain results on the bus.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	ch, unsub := t.bus.Subscribe(bus.KindSyncCompleted, 64)

	go func() {
		defer close(t.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				res, ok := evt.Payload.(outbox.Result)
				if !ok {
					continue
				}
				if err := t.Record(ctx, evt.Timestamp, res); err != nil {
					t.logger.Error("failed to record drain result", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the tracker and waits for it to exit.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

// Record stores res as the latest drain and adds it to the totals.
func (t *Tracker) Record(ctx context.Context, at time.Time, res outbox.Result) error {
	if at.IsZero() {
		at = t.now()
	}
	var totals Totals
	if _, err := t.rec.Get(ctx, KeyTotals, &totals); err != nil {
		return err
	}
	totals.Cycles++
	totals.Success += res.Success
	totals.Failed += res.Failed

	if err := t.rec.Put(ctx, KeyLastDrain, LastDrain{At: at.UTC(), Result: res}); err != nil {
		return err
	}
	return t.rec.Put(ctx, KeyTotals, totals)
}

// History returns the persisted drain history.
func (t *Tracker) History(ctx context.Context) (History, error) {
	var h History
	var last LastDrain
	ok, err := t.rec.Get(ctx, KeyLastDrain, &last)
	if err != nil {
		return h, err
	}
	if ok {
		h.Last = &last
	}
	if _, err := t.rec.Get(ctx, KeyTotals, &h.Totals); err != nil {
		return h, err
	}
	return h, nil
}
