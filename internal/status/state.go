package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
)

// State represents the notification channel connection state.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Subscribed State = "SUBSCRIBED"
	Degraded   State = "DEGRADED"
	Closed     State = "CLOSED"
)

// validTransitions defines allowed state transitions. Closed is terminal.
var validTransitions = map[State][]State{
	Idle:       {Connecting, Degraded, Closed},
	Connecting: {Subscribed, Degraded, Closed},
	Subscribed: {Degraded, Closed},
	Degraded:   {Connecting, Closed},
}

// Machine tracks and enforces channel state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
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
		m.bus.Publish(bus.Event{
			Kind:      bus.ChannelStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Live reports whether pushed notifications are currently flowing.
func (s State) Live() bool {
	return s == Subscribed
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
