package sync

import (
	"context"
	"encoding/json"
	"fmt"
)

// Checkpointer is the key/value table sync history is kept in.
type Checkpointer interface {
	SetCheckpoint(ctx context.Context, key, value string) error
	Checkpoint(ctx context.Context, key string) (string, bool, error)
}

// Checkpoint keys.
const (
	KeyLastDrain = "last_drain"
	KeyTotals    = "drain_totals"
)

// Reconciler reads and writes JSON-encoded sync checkpoints.
type Reconciler struct {
	store Checkpointer
}

// NewReconciler creates a new reconciler.
func NewReconciler(store Checkpointer) *Reconciler {
	return &Reconciler{store: store}
}

// Put encodes v and stores it under key.
func (r *Reconciler) Put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", key, err)
	}
	return r.store.SetCheckpoint(ctx, key, string(raw))
}

// Get decodes the checkpoint under key into v. It reports false if the key is unset.
func (r *Reconciler) Get(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := r.store.Checkpoint(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode checkpoint %s: %w", key, err)
	}
	return true, nil
}
