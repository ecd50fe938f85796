package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Document is a document held by Memory.
type Document struct {
	ID         string
	Collection string
	Payload    json.RawMessage
}

// Memory is an in-process Store. It backs the "memory" remote backend and
// lets tests script failures per collection or per call.
type Memory struct {
	mu    sync.Mutex
	docs  []Document
	calls int
	next  int

	// FailWith, when set, decides whether a create fails. It is called
	// with the 1-based call number and the payload.
	FailWith func(call int, collection string, payload json.RawMessage) error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Create implements Store.
func (m *Memory) Create(ctx context.Context, collection string, payload json.RawMessage) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	fail := m.FailWith
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fail != nil {
		if err := fail(call, collection, payload); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("mem-%d", m.next)
	m.docs = append(m.docs, Document{
		ID:         id,
		Collection: collection,
		Payload:    append(json.RawMessage(nil), payload...),
	})
	return id, nil
}

// Calls returns how many creates were attempted.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Documents returns a copy of the stored documents in creation order.
func (m *Memory) Documents() []Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Document, len(m.docs))
	copy(out, m.docs)
	return out
}

// Collection returns the documents stored under name.
func (m *Memory) Collection(name string) []Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, d := range m.docs {
		if d.Collection == name {
			out = append(out, d)
		}
	}
	return out
}
