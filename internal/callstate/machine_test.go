package callstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine() *Machine {
	return NewMachine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func activeMachine(t *testing.T) *Machine {
	t.Helper()
	m := newTestMachine()
	for _, e := range []Event{
		OwnerStartCall("call-1"),
		TokenReceived("tok"),
		JoinStarted(),
		OwnerJoined("owner-1"),
	} {
		_, err := m.Dispatch(e)
		require.NoError(t, err)
	}
	require.Equal(t, KindActive, m.State().Kind)
	return m
}

func TestTransitionTableCoversEveryKind(t *testing.T) {
	for _, k := range Kinds {
		_, ok := table[k]
		assert.True(t, ok, "no transitions for %s", k)
	}
	for k, events := range table {
		for ev := range events {
			assert.Contains(t, EventKinds, ev, "unknown event %s in %s", ev, k)
		}
	}
}

func TestOwnerHappyPath(t *testing.T) {
	m := activeMachine(t)

	state, err := m.Dispatch(GuestJoined("guest-1"))
	require.NoError(t, err)

	require.Len(t, state.Participants, 2)
	owner, ok := state.Participant(domain.RoleOwner)
	require.True(t, ok)
	assert.Equal(t, "owner-1", owner.ID)
	guest, ok := state.Participant(domain.RoleGuest)
	require.True(t, ok)
	assert.Equal(t, "guest-1", guest.ID)
}

func TestTokenReceivedCanJoinDirectly(t *testing.T) {
	m := newTestMachine()
	_, err := m.Dispatch(OwnerStartCall("c"))
	require.NoError(t, err)
	_, err = m.Dispatch(TokenReceived("tok"))
	require.NoError(t, err)

	state, err := m.Dispatch(OwnerJoined("o"))
	require.NoError(t, err)
	assert.Equal(t, KindActive, state.Kind)
	assert.Equal(t, "tok", state.Token)
}

func TestGuestJoinedIsIdempotent(t *testing.T) {
	m := activeMachine(t)
	var notifications int
	m.Subscribe(func(next, prev State) { notifications++ })

	_, err := m.Dispatch(GuestJoined("guest-1"))
	require.NoError(t, err)
	state, err := m.Dispatch(GuestJoined("guest-2"))
	require.NoError(t, err)

	assert.Equal(t, KindActive, state.Kind)
	assert.Len(t, state.Participants, 2)
	guest, _ := state.Participant(domain.RoleGuest)
	assert.Equal(t, "guest-1", guest.ID)
	assert.Equal(t, 1, notifications)
}

func TestDuplicateOwnerMovesToError(t *testing.T) {
	m := activeMachine(t)
	var seen []State
	m.Subscribe(func(next, prev State) { seen = append(seen, next) })

	state, err := m.Dispatch(OwnerJoined("owner-2"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariantViolation))
	assert.Equal(t, KindError, state.Kind)
	require.NotNil(t, state.Previous)
	assert.Equal(t, KindActive, state.Previous.Kind)
	assert.Len(t, state.Previous.Participants, 1)

	for _, s := range seen {
		if s.Kind == KindActive {
			t.Fatalf("active state with duplicate roles was observable: %+v", s)
		}
	}
}

func TestValidateRejectsBrokenActiveStates(t *testing.T) {
	owner := Participant{ID: "o", Role: domain.RoleOwner}
	guest := Participant{ID: "g", Role: domain.RoleGuest}

	tests := []struct {
		name  string
		state State
	}{
		{"no owner", State{Kind: KindActive, CallID: "c", Participants: []Participant{guest}}},
		{"duplicate guest", State{Kind: KindActive, CallID: "c", Participants: []Participant{owner, guest, guest}}},
		{"duplicate owner", State{Kind: KindActive, CallID: "c", Participants: []Participant{owner, owner}}},
		{"missing call", State{Kind: KindActive, Participants: []Participant{owner}}},
		{"unknown role", State{Kind: KindActive, CallID: "c", Participants: []Participant{owner, {ID: "x", Role: "admin"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.state), ErrInvariantViolation)
		})
	}

	assert.NoError(t, Validate(State{Kind: KindActive, CallID: "c", Participants: []Participant{owner, guest}}))
}

func TestOwnerLeavingEndsCall(t *testing.T) {
	m := activeMachine(t)
	var kinds []Kind
	m.Subscribe(func(next, prev State) { kinds = append(kinds, next.Kind) })

	state, err := m.Dispatch(ParticipantLeft(domain.RoleOwner, "owner-1"))
	require.NoError(t, err)

	assert.Equal(t, KindEnded, state.Kind)
	assert.Equal(t, []Kind{KindEnding, KindEnded}, kinds)
}

func TestGuestLeavingKeepsCallActive(t *testing.T) {
	m := activeMachine(t)
	_, err := m.Dispatch(GuestJoined("guest-1"))
	require.NoError(t, err)

	state, err := m.Dispatch(ParticipantLeft(domain.RoleGuest, "guest-1"))
	require.NoError(t, err)

	assert.Equal(t, KindActive, state.Kind)
	assert.Len(t, state.Participants, 1)
}

func TestCallEndedFromAnyLiveState(t *testing.T) {
	for _, steps := range [][]Event{
		{OwnerStartCall("c")},
		{OwnerStartCall("c"), TokenReceived("t")},
		{OwnerStartCall("c"), TokenReceived("t"), JoinStarted()},
		{OwnerStartCall("c"), TokenReceived("t"), OwnerJoined("o")},
	} {
		m := newTestMachine()
		for _, e := range steps {
			_, err := m.Dispatch(e)
			require.NoError(t, err)
		}
		state, err := m.Dispatch(CallEnded("guest hung up"))
		require.NoError(t, err)
		assert.Equal(t, KindEnded, state.Kind)
		assert.Equal(t, "guest hung up", state.Reason)
	}
}

func TestRestartRequiresFreshCallID(t *testing.T) {
	m := activeMachine(t)
	_, err := m.Dispatch(CallEnded(""))
	require.NoError(t, err)

	_, err = m.Dispatch(OwnerStartCall("call-1"))
	assert.ErrorIs(t, err, ErrStaleCall)
	assert.Equal(t, KindEnded, m.State().Kind)

	state, err := m.Dispatch(OwnerStartCall("call-2"))
	require.NoError(t, err)
	assert.Equal(t, KindRequestingToken, state.Kind)
	assert.Equal(t, "call-2", state.CallID)
}

func TestOnlyStartCallLeavesTerminalStates(t *testing.T) {
	m := newTestMachine()
	_, err := m.Dispatch(OwnerStartCall("c"))
	require.NoError(t, err)
	_, err = m.Dispatch(Failure(errors.New("negotiation failed")))
	require.NoError(t, err)
	require.Equal(t, KindError, m.State().Kind)

	for _, e := range []Event{TokenReceived("t"), GuestJoined("g"), OwnerJoined("o"), CallEnded("")} {
		_, err := m.Dispatch(e)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, KindError, m.State().Kind)
	}

	state, err := m.Dispatch(OwnerStartCall("c2"))
	require.NoError(t, err)
	assert.Equal(t, KindRequestingToken, state.Kind)
}

func TestSecondCallRejectedWhileActive(t *testing.T) {
	m := activeMachine(t)

	_, err := m.Dispatch(OwnerStartCall("call-2"))

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "call-1", m.State().CallID)
}

func TestListenersRunInOrderAndAreIsolated(t *testing.T) {
	m := newTestMachine()
	var order []string
	m.Subscribe(func(next, prev State) { order = append(order, "first") })
	m.Subscribe(func(next, prev State) { panic("boom") })
	unsubscribe := m.Subscribe(func(next, prev State) { order = append(order, "third") })

	_, err := m.Dispatch(OwnerStartCall("c"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third"}, order)

	unsubscribe()
	_, err = m.Dispatch(TokenReceived("t"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third", "first"}, order)
}

func TestListenerSeesPreviousState(t *testing.T) {
	m := newTestMachine()
	var prevKinds []Kind
	m.Subscribe(func(next, prev State) { prevKinds = append(prevKinds, prev.Kind) })

	_, _ = m.Dispatch(OwnerStartCall("c"))
	_, _ = m.Dispatch(TokenReceived("t"))

	assert.Equal(t, []Kind{KindIdle, KindRequestingToken}, prevKinds)
}

func TestFailureLogsCarryOpAndError(t *testing.T) {
	var buf bytes.Buffer
	m := NewMachine(slog.New(slog.NewJSONHandler(&buf, nil)))
	m.Subscribe(func(next, _ State) {
		if next.Kind == KindRequestingToken {
			panic("boom")
		}
	})

	_, err := m.Dispatch(OwnerStartCall("call-1"))
	require.NoError(t, err)
	_, err = m.Dispatch(TokenReceived("tok"))
	require.NoError(t, err)
	_, err = m.Dispatch(JoinStarted())
	require.NoError(t, err)
	_, err = m.Dispatch(OwnerJoined("owner-1"))
	require.NoError(t, err)
	_, err = m.Dispatch(OwnerJoined("owner-2"))
	require.ErrorIs(t, err, ErrInvariantViolation)

	records := map[string]map[string]any{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		records[rec["msg"].(string)] = rec
	}

	panicked := records["call state listener panicked"]
	require.NotNil(t, panicked)
	assert.Equal(t, "callstate.machine.notify", panicked["op"])
	assert.Equal(t, "panic: boom", panicked["error"])

	violated := records["call state invariant violated"]
	require.NotNil(t, violated)
	assert.Equal(t, "callstate.machine.dispatch", violated["op"])
	assert.Contains(t, violated["error"], "call state invariant violated")
}

func TestDispatchForIgnoresOtherCalls(t *testing.T) {
	m := activeMachine(t)

	_, err := m.DispatchFor("call-0", CallEnded("late"))
	require.ErrorIs(t, err, ErrOtherCall)
	assert.Equal(t, KindActive, m.State().Kind)

	_, err = m.DispatchFor("call-2", OwnerStartCall("call-2"))
	require.ErrorIs(t, err, ErrInvalidTransition)

	st, err := m.DispatchFor("call-1", CallEnded("done"))
	require.NoError(t, err)
	assert.Equal(t, KindEnded, st.Kind)
}
