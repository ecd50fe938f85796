package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maclap/cashtrack/internal/record"
)

// MoveToDeadLetter moves a record out of the queue into the dead letter
// table in one transaction. It reports false if the record was already gone.
func (q *Queue) MoveToDeadLetter(ctx context.Context, id string, cause error) (bool, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return false, err
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("dead letter %s: begin: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO dead_letters (id, kind, payload, enqueued_at, retry_count, last_error, dead_at)
		SELECT id, kind, payload, enqueued_at, retry_count, ?, ?
		FROM offline_records WHERE id = ?`,
		lastErr, q.now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("dead letter %s: %w: %v", id, ErrStorageWriteFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM offline_records WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("dead letter %s: %w: %v", id, ErrStorageWriteFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("dead letter %s: commit: %w: %v", id, ErrStorageWriteFailed, err)
	}
	return true, nil
}

// ListDeadLetters returns dead letters, oldest first.
func (q *Queue) ListDeadLetters(ctx context.Context) ([]DeadLetter, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, payload, enqueued_at, retry_count, last_error, dead_at
		FROM dead_letters ORDER BY dead_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DeadLetter
	for rows.Next() {
		var (
			d       DeadLetter
			kind    string
			payload string
		)
		if err := rows.Scan(&d.ID, &kind, &payload, &d.EnqueuedAt, &d.RetryCount, &d.LastError, &d.DeadAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		d.Kind = record.Kind(kind)
		d.Payload = json.RawMessage(payload)
		out = append(out, d)
	}
	return out, rows.Err()
}

// RequeueDeadLetter puts a dead letter back on the queue under a fresh id
// with a zero retry counter, and returns the new id.
func (q *Queue) RequeueDeadLetter(ctx context.Context, id string) (string, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return "", err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("requeue %s: begin: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	var kind, payload string
	if err := tx.QueryRowContext(ctx, `SELECT kind, payload FROM dead_letters WHERE id = ?`, id).Scan(&kind, &payload); err != nil {
		return "", fmt.Errorf("requeue %s: %w", id, ErrNotFound)
	}

	now := q.stamp()
	newID := newRecordID(now)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO offline_records (id, kind, payload, synced, enqueued_at, retry_count, updated_at)
		VALUES (?, ?, ?, 0, ?, 0, ?)`,
		newID, kind, payload, now, now); err != nil {
		return "", fmt.Errorf("requeue %s: %w: %v", id, ErrStorageWriteFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("requeue %s: %w: %v", id, ErrStorageWriteFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("requeue %s: commit: %w: %v", id, ErrStorageWriteFailed, err)
	}
	return newID, nil
}

// PurgeDeadLetters deletes every dead letter and returns how many were removed.
func (q *Queue) PurgeDeadLetters(ctx context.Context) (int64, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM dead_letters`)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w: %v", ErrStorageWriteFailed, err)
	}
	return res.RowsAffected()
}
