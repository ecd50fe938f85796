// Package api is the daemon's gRPC surface. Messages travel as
// google.protobuf.Struct and are mapped to the Go types below through
// their JSON form, so the service needs no generated code.
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Empty is the request of methods that take no arguments.
type Empty struct{}

// SubmitRequest carries a new record from a client.
type SubmitRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// SubmitResponse tells the client where the record went.
type SubmitResponse struct {
	ID       string `json:"id,omitempty"`
	RemoteID string `json:"remote_id,omitempty"`
	Queued   bool   `json:"queued"`
}

// SyncNowResponse reports a manually triggered drain.
type SyncNowResponse struct {
	Ran     bool `json:"ran"` // false if a drain was already running
	Online  bool `json:"online"`
	Success int  `json:"success"`
	Failed  int  `json:"failed"`
}

// SyncStatus is the daemon's view of the queue and connectivity.
type SyncStatus struct {
	Profile       string         `json:"profile"`
	State         string         `json:"state"`
	Online        bool           `json:"online"`
	NetworkMode   string         `json:"network_mode"`
	Draining      bool           `json:"draining"`
	Pending       int            `json:"pending"`
	PendingByKind map[string]int `json:"pending_by_kind,omitempty"`
	DeadLetters   int            `json:"dead_letters"`
	LastDrainAt   *time.Time     `json:"last_drain_at,omitempty"`
	LastSuccess   int            `json:"last_success"`
	LastFailed    int            `json:"last_failed"`
	TotalCycles   int            `json:"total_cycles"`
	TotalSuccess  int            `json:"total_success"`
	TotalFailed   int            `json:"total_failed"`
	StorageError  string         `json:"storage_error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
}

// PendingRecord is an unsynced queue entry as shown to clients.
type PendingRecord struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	EnqueuedAt int64  `json:"enqueued_at"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}

// ListPendingResponse lists unsynced records in drain order.
type ListPendingResponse struct {
	Records []PendingRecord `json:"records"`
}

// DeadLetter is a record that exhausted its retry budget.
type DeadLetter struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt int64           `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error"`
	DeadAt     int64           `json:"dead_at"`
}

// ListDeadLettersResponse lists dead letters, oldest first.
type ListDeadLettersResponse struct {
	Records []DeadLetter `json:"records"`
}

// RequeueRequest names a dead letter to put back in the queue.
type RequeueRequest struct {
	ID string `json:"id"`
}

// RequeueResponse carries the id of the new queue entry.
type RequeueResponse struct {
	ID string `json:"id"`
}

// PurgeResponse reports how many dead letters were deleted.
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// SetNetworkModeRequest forces connectivity on or off, or back to probing.
type SetNetworkModeRequest struct {
	Mode string `json:"mode"`
}

// SetNetworkModeResponse reports the resulting connectivity.
type SetNetworkModeResponse struct {
	Mode   string `json:"mode"`
	Online bool   `json:"online"`
}

// WatchEventsRequest selects bus events by kind prefix. Empty means all.
type WatchEventsRequest struct {
	Prefix string `json:"prefix"`
}

// Event is a bus event streamed to clients.
type Event struct {
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Profile string          `json:"profile"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ToStruct converts v to a Struct through its JSON encoding.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// FromStruct fills v from the JSON form of s.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = new(structpb.Struct)
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
