package store

import (
	"encoding/json"

	"github.com/maclap/cashtrack/internal/record"
)

// OfflineRecord is a local write awaiting remote commit.
type OfflineRecord struct {
	ID         string
	Kind       record.Kind
	Payload    json.RawMessage
	Synced     bool
	EnqueuedAt int64 // unix ms, non-decreasing per queue
	RetryCount int
	LastError  string
}

// DeadLetter is a record that exhausted its retry budget.
type DeadLetter struct {
	ID         string
	Kind       record.Kind
	Payload    json.RawMessage
	EnqueuedAt int64
	RetryCount int
	LastError  string
	DeadAt     int64
}
