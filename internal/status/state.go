// Package status tracks the lifecycle of an ingestion run.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/mailingest/internal/bus"
)

// State is the lifecycle state of a run.
type State string

const (
	Pending   State = "PENDING"
	Ingesting State = "INGESTING"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
)

var validTransitions = map[State][]State{
	Pending:   {Ingesting, Failed},
	Ingesting: {Completed, Failed},
}

// Machine tracks and enforces run state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Pending state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Pending,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Terminal reports whether the run has finished, successfully or not.
func (m *Machine) Terminal() bool {
	s := m.Current()
	return s == Completed || s == Failed
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
