// Package status drives the offline indicator shown to clients.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/maclap/cashtrack/internal/bus"
)

// State is what the offline indicator displays.
type State string

const (
	Offline State = "OFFLINE"
	Online  State = "ONLINE"
	Syncing State = "SYNCING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Offline: {Online},
	Online:  {Offline, Syncing},
	Syncing: {Online, Offline},
}

// Machine tracks and enforces indicator state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Offline state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Offline,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(bus.KindStatusChanged, StatusChange{
			From: from,
			To:   to,
		}))
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
