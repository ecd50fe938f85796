package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetCheckpoint stores a sync_state value.
func (q *Queue) SetCheckpoint(ctx context.Context, key, value string) error {
	db, err := q.handle(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, q.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w: %v", key, ErrStorageWriteFailed, err)
	}
	return nil
}

// Checkpoint retrieves a sync_state value. ok is false if the key is unset.
func (q *Queue) Checkpoint(ctx context.Context, key string) (value string, ok bool, err error) {
	db, err := q.handle(ctx)
	if err != nil {
		return "", false, err
	}
	err = db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	return value, true, nil
}
