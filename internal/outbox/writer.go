package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maclap/cashtrack/internal/bus"
	"github.com/maclap/cashtrack/internal/record"
	"github.com/maclap/cashtrack/internal/remote"
	"go.uber.org/zap"
)

// Enqueuer persists a record for a later drain.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind record.Kind, payload json.RawMessage) (string, error)
}

// Outcome describes where a submitted record ended up.
type Outcome struct {
	ID       string `json:"id,omitempty"`        // local queue id, set when Queued
	RemoteID string `json:"remote_id,omitempty"` // remote document id, set when committed
	Queued   bool   `json:"queued"`
}

// Writer is the write path for new records: straight to the remote store
// when online, into the queue otherwise.
type Writer struct {
	queue  Enqueuer
	remote remote.Store
	net    Connectivity
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options
}

// NewWriter creates a writer. It shares the coordinator's attempt timeout.
func NewWriter(q Enqueuer, rs remote.Store, n Connectivity, b *bus.Bus, logger *zap.Logger, opts Options) *Writer {
	return &Writer{
		queue:  q,
		remote: rs,
		net:    n,
		bus:    b,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// Submit validates payload as a record of the given kind and stores it.
// A failed direct commit falls back to the queue, so the only errors
// returned are validation and local storage failures.
func (w *Writer) Submit(ctx context.Context, kind record.Kind, payload json.RawMessage) (Outcome, error) {
	v, err := record.Decode(kind, payload)
	if err != nil {
		return Outcome{}, err
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode %s: %w", kind, err)
	}

	if w.net.Online() {
		collection, _ := kind.Collection()
		attemptCtx, cancel := context.WithTimeout(ctx, w.opts.AttemptTimeout)
		remoteID, err := w.remote.Create(attemptCtx, collection, canonical)
		cancel()
		if err == nil {
			w.logger.Info("record committed", zap.String("kind", kind.String()), zap.String("remote_id", remoteID))
			w.bus.Publish(bus.NewEvent(bus.KindRecordCommitted, Outcome{RemoteID: remoteID}))
			return Outcome{RemoteID: remoteID}, nil
		}
		w.logger.Warn("direct commit failed; queueing record", zap.Error(err), zap.String("kind", kind.String()))
	}

	id, err := w.queue.Enqueue(ctx, kind, canonical)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{ID: id, Queued: true}
	w.logger.Info("record queued", zap.String("kind", kind.String()), zap.String("id", id))
	w.bus.Publish(bus.NewEvent(bus.KindRecordQueued, out))
	return out, nil
}
