package bus

import "time"

// Event kinds published inside the daemon. Subscribers filter by prefix,
// e.g. "sync." or "net.".
const (
	KindNetOnline  = "net.online"
	KindNetOffline = "net.offline"

	KindSyncStarted       = "sync.started"
	KindSyncCompleted     = "sync.completed"
	KindSyncRecordDropped = "sync.record_dropped"

	KindRecordQueued    = "record.queued"
	KindRecordCommitted = "record.committed"

	KindStatusChanged = "status.changed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
