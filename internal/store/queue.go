package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maclap/cashtrack/internal/record"
)

// Queue is the durable offline queue for one profile. It owns its database
// handle: construct it with NewQueue, call Initialize (or let the first
// operation do it) and Close when done.
type Queue struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	db     *DB
	schema Schema
	err    error
	closed bool

	clockMu sync.Mutex
	last    int64
}

// NewQueue returns a queue backed by the SQLite file at path. Nothing is
// opened until Initialize or the first operation.
func NewQueue(path string) *Queue {
	return &Queue{path: path, now: time.Now}
}

// Initialize opens (or creates) the backing store and applies migrations.
// It is idempotent and safe for concurrent callers; every call after the
// first returns the same live handle. A failure is remembered and returned
// by all later calls, wrapped in ErrStorageUnavailable.
func (q *Queue) Initialize(ctx context.Context) error {
	_, err := q.handle(ctx)
	return err
}

// DB returns the live handle, or nil before a successful Initialize.
func (q *Queue) DB() *DB {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.db
}

// Path returns the database file path.
func (q *Queue) Path() string { return q.path }

// Close releases the database handle. Safe to call more than once.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.db == nil {
		return nil
	}
	err := q.db.Close()
	q.db = nil
	return err
}

func (q *Queue) handle(ctx context.Context) (*DB, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if q.db != nil {
		return q.db, nil
	}
	if q.err != nil {
		return nil, q.err
	}

	db, err := Open(ctx, q.path)
	var schema Schema
	if err == nil {
		if schema, err = db.Migrate(); err != nil {
			_ = db.Close()
		}
	}
	if err != nil {
		q.err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		return nil, q.err
	}

	// Resume the enqueue clock so timestamps stay non-decreasing across restarts.
	var last sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(enqueued_at) FROM offline_records`).Scan(&last); err == nil && last.Valid {
		q.clockMu.Lock()
		if last.Int64 > q.last {
			q.last = last.Int64
		}
		q.clockMu.Unlock()
	}

	q.db = db
	q.schema = schema
	return db, nil
}

// Schema returns the schema state observed by Initialize.
func (q *Queue) Schema() Schema {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.schema
}

// stamp returns the current unix ms, never lower than the previous stamp.
func (q *Queue) stamp() int64 {
	q.clockMu.Lock()
	defer q.clockMu.Unlock()
	now := q.now().UnixMilli()
	if now < q.last {
		now = q.last
	}
	q.last = now
	return now
}

func newRecordID(ms int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("offline_%d_%s", ms, suffix)
}

// Enqueue persists a new unsynced record and returns its id. On failure the
// write is lost; nothing is buffered in memory.
func (q *Queue) Enqueue(ctx context.Context, kind record.Kind, payload json.RawMessage) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("enqueue: %w: %q", record.ErrUnknownKind, string(kind))
	}
	if !json.Valid(payload) {
		return "", fmt.Errorf("enqueue: %w: payload is not valid JSON", ErrStorageWriteFailed)
	}
	db, err := q.handle(ctx)
	if err != nil {
		return "", err
	}

	now := q.stamp()
	id := newRecordID(now)
	_, err = db.ExecContext(ctx, `
		INSERT INTO offline_records (id, kind, payload, synced, enqueued_at, retry_count, updated_at)
		VALUES (?, ?, ?, 0, ?, 0, ?)`,
		id, string(kind), string(payload), now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w: %v", kind, ErrStorageWriteFailed, err)
	}
	return id, nil
}

// ListUnsynced returns every unsynced record in enqueue order.
func (q *Queue) ListUnsynced(ctx context.Context) ([]OfflineRecord, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, payload, synced, enqueued_at, retry_count, last_error
		FROM offline_records WHERE synced = 0 ORDER BY enqueued_at ASC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list unsynced: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []OfflineRecord
	for rows.Next() {
		var (
			r       OfflineRecord
			kind    string
			payload string
		)
		if err := rows.Scan(&r.ID, &kind, &payload, &r.Synced, &r.EnqueuedAt, &r.RetryCount, &r.LastError); err != nil {
			return nil, fmt.Errorf("scan offline record: %w", err)
		}
		r.Kind = record.Kind(kind)
		r.Payload = json.RawMessage(payload)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns a single record, or nil if it does not exist.
func (q *Queue) Get(ctx context.Context, id string) (*OfflineRecord, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return nil, err
	}
	var (
		r       OfflineRecord
		kind    string
		payload string
	)
	err = db.QueryRowContext(ctx, `
		SELECT id, kind, payload, synced, enqueued_at, retry_count, last_error
		FROM offline_records WHERE id = ?`, id).
		Scan(&r.ID, &kind, &payload, &r.Synced, &r.EnqueuedAt, &r.RetryCount, &r.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get offline record: %w", err)
	}
	r.Kind = record.Kind(kind)
	r.Payload = json.RawMessage(payload)
	return &r, nil
}

// RemoveRecord deletes a record permanently. Removing an unknown id is not an error.
func (q *Queue) RemoveRecord(ctx context.Context, id string) error {
	db, err := q.handle(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM offline_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove %s: %w: %v", id, ErrStorageWriteFailed, err)
	}
	return nil
}

// UpdateRetry raises a record's retry counter to retryCount and stores the
// cause of the failed attempt. The counter never moves backwards: an update
// that would not increase it is ignored. It reports false when no row was
// changed, which happens when the record was removed concurrently.
func (q *Queue) UpdateRetry(ctx context.Context, id string, retryCount int, cause error) (bool, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return false, err
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}
	res, err := db.ExecContext(ctx, `
		UPDATE offline_records SET retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND retry_count < ?`,
		retryCount, lastErr, q.now().UnixMilli(), id, retryCount)
	if err != nil {
		return false, fmt.Errorf("update retry %s: %w: %v", id, ErrStorageWriteFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update retry %s: %w", id, err)
	}
	return n > 0, nil
}

// Count returns the number of unsynced records.
func (q *Queue) Count(ctx context.Context) (int, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_records WHERE synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unsynced: %w", err)
	}
	return n, nil
}

// CountByKind returns unsynced counts grouped by record kind.
func (q *Queue) CountByKind(ctx context.Context) (map[record.Kind]int, error) {
	db, err := q.handle(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM offline_records WHERE synced = 0 GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[record.Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[record.Kind(kind)] = n
	}
	return counts, rows.Err()
}
