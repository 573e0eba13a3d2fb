package callstate

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
)

// Listener observes every state change. prev is the state before the step.
type Listener func(next, prev State)

type listenerEntry struct {
	id int
	fn Listener
}

// Machine applies Transition and enforces Validate on every resulting state.
// An invariant failure moves the machine to KindError instead of repairing it.
type Machine struct {
	log *slog.Logger

	mu        sync.Mutex
	state     State
	listeners []listenerEntry
	nextID    int
}

func NewMachine(log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{log: log, state: Idle()}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn. Listeners run synchronously in registration order
// and must not call Dispatch themselves.
func (m *Machine) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

type change struct {
	next State
	prev State
}

// Dispatch feeds e to the machine and returns the resulting state. Events
// that are not allowed leave the state untouched and return an error wrapping
// ErrInvalidTransition or ErrStaleCall. Invariant failures return an error
// wrapping ErrInvariantViolation with the machine already in KindError.
func (m *Machine) Dispatch(e Event) (State, error) {
	return m.dispatch("", e)
}

// DispatchFor is Dispatch scoped to callID. Events other than a call start
// are rejected with ErrOtherCall once the machine has moved on to a
// different call, so a late event from a finished call cannot touch the
// current one.
func (m *Machine) DispatchFor(callID string, e Event) (State, error) {
	return m.dispatch(callID, e)
}

func (m *Machine) dispatch(callID string, e Event) (State, error) {
	const op = "callstate.machine.dispatch"

	m.mu.Lock()
	var (
		steps []State
		err   error
	)
	if callID != "" && e.Kind != EventOwnerStartCall && m.state.CallID != callID {
		err = fmt.Errorf("%w: %s", ErrOtherCall, callID)
	} else {
		steps, err = Transition(m.state, e)
	}
	if err != nil {
		current := m.state.clone()
		m.mu.Unlock()
		m.log.Debug("event rejected", "op", op, "event", e.Kind, "state", current.Kind, sl.Err(err))
		return current, err
	}

	var (
		changes    []change
		invariantE error
	)
	for _, next := range steps {
		prev := m.state
		if verr := Validate(next); verr != nil {
			next = Failed(prev, verr)
			invariantE = verr
		}
		m.state = next
		changes = append(changes, change{next: next.clone(), prev: prev.clone()})
		if invariantE != nil {
			break
		}
	}
	listeners := append([]listenerEntry(nil), m.listeners...)
	current := m.state.clone()
	m.mu.Unlock()

	for _, c := range changes {
		m.log.Info("call state changed",
			"op", op,
			"event", e.Kind,
			"from", c.prev.Kind,
			"to", c.next.Kind,
			"call_id", c.next.CallID,
		)
		for _, l := range listeners {
			m.notify(l, c)
		}
	}

	if invariantE != nil {
		m.log.Error("call state invariant violated", "op", op, "event", e.Kind, sl.Err(invariantE))
		return current, fmt.Errorf("%s: %w", op, invariantE)
	}
	return current, nil
}

func (m *Machine) notify(l listenerEntry, c change) {
	const op = "callstate.machine.notify"
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("call state listener panicked",
				"op", op,
				"listener", l.id,
				"to", c.next.Kind,
				sl.Err(fmt.Errorf("panic: %v", r)),
			)
		}
	}()
	l.fn(c.next, c.prev)
}
