package call

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/callstate"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/notify"
	"github.com/developer387/doorbell-app-sub000/internal/peer"
	"github.com/developer387/doorbell-app-sub000/internal/peer/peertest"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type staticTokens struct{}

func (staticTokens) Issue(callID, _ string, role domain.Role) (string, error) {
	return string(role) + ":" + callID, nil
}

type harness struct {
	store   *repository.InMemoryCallRepository
	channel *signaling.Channel
	hub     *notify.Hub
	guestPC *peertest.Conn
	ownerPC *peertest.Conn
	guest   *GuestSession
	manager *Manager
	rings   chan *IncomingCall
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewInMemoryCallRepository()
	channel := signaling.NewChannel(store, log)
	hub := notify.NewHub(log)
	guestPC, ownerPC := peertest.NewPair()

	manager, err := NewManager("owner-1", "prop-1", hub, channel, peertest.Factory(ownerPC), staticTokens{}, callstate.NewMachine(log), log)
	require.NoError(t, err)

	h := &harness{
		store:   store,
		channel: channel,
		hub:     hub,
		guestPC: guestPC,
		ownerPC: ownerPC,
		guest:   NewGuestSession(channel, peertest.Factory(guestPC), log, WithUnansweredTimeout(timeout)),
		manager: manager,
		rings:   make(chan *IncomingCall, 4),
	}
	manager.OnIncoming(func(ic *IncomingCall) { h.rings <- ic })
	t.Cleanup(func() {
		_ = h.guest.Hangup(context.Background())
		manager.Close(context.Background())
	})
	return h
}

func (h *harness) ring(t *testing.T) *IncomingCall {
	t.Helper()
	ctx := context.Background()

	callID, err := h.guest.Ring(ctx, "prop-1")
	require.NoError(t, err)
	require.NoError(t, h.hub.PublishRing(ctx, notify.Ring{CallID: callID, PropertyID: "prop-1"}))

	select {
	case ic := <-h.rings:
		require.Equal(t, callID, ic.CallID)
		return ic
	case <-time.After(waitFor):
		t.Fatal("ring not delivered")
		return nil
	}
}

func (h *harness) status(t *testing.T, callID string) domain.CallStatus {
	t.Helper()
	call, err := h.store.Get(context.Background(), callID)
	require.NoError(t, err)
	return call.Status
}

func TestAnsweredCallBecomesActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5*time.Second)

	ic := h.ring(t)
	assert.Equal(t, domain.CallStatusCalling, h.status(t, ic.CallID))

	owner, err := ic.Accept(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := owner.State()
		return st.Kind == callstate.KindActive && len(st.Participants) == 2
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.guest.State().Phase == GuestActive
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.status(t, ic.CallID) == domain.CallStatusConnected
	}, waitFor, 5*time.Millisecond)

	st := owner.State()
	roles := map[domain.Role]int{}
	for _, p := range st.Participants {
		roles[p.Role]++
	}
	assert.Equal(t, map[domain.Role]int{domain.RoleOwner: 1, domain.RoleGuest: 1}, roles)

	require.Eventually(t, func() bool {
		return distinctCandidates(h.guestPC.Applied()) == 2 && distinctCandidates(h.ownerPC.Applied()) == 2
	}, waitFor, 5*time.Millisecond)
}

// distinctCandidates counts distinct candidates and fails loudly on duplicates.
func distinctCandidates(cs []webrtc.ICECandidateInit) int {
	seen := map[string]bool{}
	for _, c := range cs {
		if seen[c.Candidate] {
			return -1
		}
		seen[c.Candidate] = true
	}
	return len(seen)
}

func TestGuestHangupEndsOwnerSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5*time.Second)

	owner, err := h.ring(t).Accept(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.guest.State().Phase == GuestActive }, waitFor, 5*time.Millisecond)

	require.NoError(t, h.guest.Hangup(ctx))
	assert.Equal(t, GuestEnded, h.guest.State().Phase)
	assert.True(t, h.guestPC.Closed())

	select {
	case <-owner.Done():
	case <-time.After(waitFor):
		t.Fatal("owner session not torn down")
	}
	assert.Equal(t, callstate.KindEnded, owner.State().Kind)
	assert.True(t, h.ownerPC.Closed())
	assert.Equal(t, domain.CallStatusEnded, h.status(t, owner.CallID()))

	_, ok := h.manager.Session(owner.CallID())
	assert.False(t, ok)
	require.NoError(t, h.guest.Hangup(ctx))
}

func TestOwnerHangupEndsGuestSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5*time.Second)

	owner, err := h.ring(t).Accept(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(owner.State().Participants) == 2 }, waitFor, 5*time.Millisecond)

	var (
		mu    sync.Mutex
		kinds []callstate.Kind
	)
	owner.OnStateChange(func(next, _ callstate.State) {
		mu.Lock()
		kinds = append(kinds, next.Kind)
		mu.Unlock()
	})

	require.NoError(t, owner.Hangup(ctx))
	require.NoError(t, owner.Hangup(ctx))

	mu.Lock()
	assert.Equal(t, []callstate.Kind{callstate.KindEnding, callstate.KindEnded}, kinds)
	mu.Unlock()

	select {
	case <-h.guest.Done():
	case <-time.After(waitFor):
		t.Fatal("guest session not torn down")
	}
	assert.Equal(t, GuestEnded, h.guest.State().Phase)
}

func TestUnansweredCallIsMissed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 50*time.Millisecond)

	var (
		mu     sync.Mutex
		phases []GuestPhase
	)
	h.guest.OnChange(func(st GuestState) {
		mu.Lock()
		phases = append(phases, st.Phase)
		mu.Unlock()
	})

	ic := h.ring(t)

	select {
	case <-h.guest.Done():
	case <-time.After(waitFor):
		t.Fatal("guest did not time out")
	}
	assert.Equal(t, GuestMissed, h.guest.State().Phase)
	assert.Equal(t, domain.CallStatusMissed, h.status(t, ic.CallID))
	assert.True(t, h.guestPC.Closed())

	mu.Lock()
	assert.Equal(t, []GuestPhase{GuestOffering, GuestRinging, GuestTimeout, GuestMissed}, phases)
	mu.Unlock()

	var seenActive bool
	session := NewOwnerSession(ic.CallID, ic.PropertyID, "owner-1", h.channel, peertest.Factory(h.ownerPC), staticTokens{}, nil, nil)
	session.OnStateChange(func(next, _ callstate.State) {
		if next.Kind == callstate.KindActive {
			seenActive = true
		}
	})
	err := session.Accept(ctx)
	assert.ErrorIs(t, err, ErrCallFinished)
	assert.False(t, seenActive)
	assert.Equal(t, callstate.KindEnded, session.State().Kind)
}

func TestDeclinedCallEndsGuest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5*time.Second)

	require.NoError(t, h.ring(t).Decline(ctx))

	select {
	case <-h.guest.Done():
	case <-time.After(waitFor):
		t.Fatal("guest not notified of decline")
	}
	assert.Equal(t, GuestDeclined, h.guest.State().Phase)
}

func TestConnectionFailureMarksCallFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5*time.Second)

	owner, err := h.ring(t).Accept(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(owner.State().Participants) == 2
	}, waitFor, 5*time.Millisecond)

	h.ownerPC.Fail()

	select {
	case <-owner.Done():
	case <-time.After(waitFor):
		t.Fatal("owner session not torn down")
	}
	st := owner.State()
	assert.Equal(t, callstate.KindError, st.Kind)
	assert.ErrorIs(t, st.Err, ErrConnectionFailed)
	require.NotNil(t, st.Previous)
	assert.Equal(t, callstate.KindActive, st.Previous.Kind)
	assert.Equal(t, domain.CallStatusFailed, h.status(t, owner.CallID()))

	select {
	case <-h.guest.Done():
	case <-time.After(waitFor):
		t.Fatal("guest session not torn down")
	}
	assert.Equal(t, GuestFailed, h.guest.State().Phase)
}

func TestEarlyCandidatesAppliedAfterOffer(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	channel := signaling.NewChannel(repository.NewInMemoryCallRepository(), log)

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}
	callID, err := channel.CreateCall(ctx, "prop-1", offer)
	require.NoError(t, err)

	for _, c := range []string{"g-3", "g-1", "g-2", "g-1"} {
		require.NoError(t, channel.AppendIceCandidate(ctx, callID, domain.RoleGuest, webrtc.ICECandidateInit{Candidate: c}))
	}

	_, ownerPC := peertest.NewPair()
	session := NewOwnerSession(callID, "prop-1", "owner-1", channel, peertest.Factory(ownerPC), staticTokens{}, nil, log)
	require.NoError(t, session.Accept(ctx))
	defer session.Hangup(ctx)

	require.Eventually(t, func() bool { return len(ownerPC.Applied()) == 3 }, waitFor, 5*time.Millisecond)

	require.NoError(t, channel.AppendIceCandidate(ctx, callID, domain.RoleGuest, webrtc.ICECandidateInit{Candidate: "g-2"}))
	require.NoError(t, channel.AppendIceCandidate(ctx, callID, domain.RoleGuest, webrtc.ICECandidateInit{Candidate: "g-4"}))

	require.Eventually(t, func() bool { return len(ownerPC.Applied()) == 4 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 4, distinctCandidates(ownerPC.Applied()))
}

func TestAcceptTwiceReturnsSameSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5*time.Second)

	ic := h.ring(t)
	first, err := ic.Accept(ctx)
	require.NoError(t, err)
	second, err := h.manager.Accept(ctx, ic.CallID, ic.PropertyID)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRingTwiceIsRejected(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	h.ring(t)

	_, err := h.guest.Ring(context.Background(), "prop-1")
	assert.ErrorIs(t, err, ErrSessionStarted)
}

func TestSecondCallRejectedWhileOneIsActive(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	channel := signaling.NewChannel(repository.NewInMemoryCallRepository(), log)
	hub := notify.NewHub(log)

	guest1PC, owner1PC := peertest.NewPair()
	guest2PC, owner2PC := peertest.NewPair()

	var created int
	var mu sync.Mutex
	ownerConns := peertest.Factory(owner1PC, owner2PC)
	factory := peer.FactoryFunc(func() (peer.Connection, error) {
		mu.Lock()
		created++
		mu.Unlock()
		return ownerConns.NewConnection()
	})
	connections := func() int {
		mu.Lock()
		defer mu.Unlock()
		return created
	}

	manager, err := NewManager("owner-1", "prop-1", hub, channel, factory, staticTokens{}, callstate.NewMachine(log), log)
	require.NoError(t, err)
	defer manager.Close(ctx)

	rings := make(chan *IncomingCall, 2)
	manager.OnIncoming(func(ic *IncomingCall) { rings <- ic })

	ringAs := func(guest *GuestSession) *IncomingCall {
		callID, err := guest.Ring(ctx, "prop-1")
		require.NoError(t, err)
		require.NoError(t, hub.PublishRing(ctx, notify.Ring{CallID: callID, PropertyID: "prop-1"}))
		select {
		case ic := <-rings:
			require.Equal(t, callID, ic.CallID)
			return ic
		case <-time.After(waitFor):
			t.Fatal("ring not delivered")
			return nil
		}
	}

	guest1 := NewGuestSession(channel, peertest.Factory(guest1PC), log, WithUnansweredTimeout(5*time.Second))
	guest2 := NewGuestSession(channel, peertest.Factory(guest2PC), log, WithUnansweredTimeout(5*time.Second))
	defer guest1.Hangup(ctx)
	defer guest2.Hangup(ctx)

	first := ringAs(guest1)
	second := ringAs(guest2)

	owner1, err := first.Accept(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return owner1.State().Kind == callstate.KindActive }, waitFor, 5*time.Millisecond)

	_, err = second.Accept(ctx)
	require.ErrorIs(t, err, callstate.ErrInvalidTransition)
	assert.Equal(t, 1, connections())
	_, ok := manager.Session(second.CallID)
	assert.False(t, ok)
	assert.Equal(t, first.CallID, manager.State().CallID)
	assert.Equal(t, callstate.KindActive, owner1.State().Kind)

	call, err := channel.Get(ctx, second.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusCalling, call.Status)

	require.NoError(t, owner1.Hangup(ctx))
	<-owner1.Done()

	owner2, err := second.Accept(ctx)
	require.NoError(t, err)
	defer owner2.Hangup(ctx)
	assert.Equal(t, 2, connections())
	require.Eventually(t, func() bool { return owner2.State().Kind == callstate.KindActive }, waitFor, 5*time.Millisecond)
	assert.Equal(t, callstate.KindEnded, owner1.State().Kind)
}

// initialSnapshotStore delivers only the first snapshot of each subscription.
type initialSnapshotStore struct {
	*repository.InMemoryCallRepository
}

func (s initialSnapshotStore) Subscribe(ctx context.Context, id string) (<-chan *domain.CallRecord, func(), error) {
	updates, cancel, err := s.InMemoryCallRepository.Subscribe(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *domain.CallRecord, 1)
	go func() {
		defer close(out)
		first := true
		for call := range updates {
			if first {
				out <- call
				first = false
			}
		}
	}()
	return out, cancel, nil
}

func TestStoredAnswerBeatsUnansweredTimer(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewInMemoryCallRepository()
	channel := signaling.NewChannel(initialSnapshotStore{store}, log)

	guestPC, _ := peertest.NewPair()
	guest := NewGuestSession(channel, peertest.Factory(guestPC), log, WithUnansweredTimeout(100*time.Millisecond))
	defer guest.Hangup(ctx)

	callID, err := guest.Ring(ctx, "prop-1")
	require.NoError(t, err)
	require.NoError(t, channel.WriteAnswer(ctx, callID, &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}))

	require.Eventually(t, func() bool {
		return guest.State().Phase == GuestConnecting
	}, waitFor, 5*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	call, err := store.Get(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusCalling, call.Status)
	assert.NotEqual(t, GuestMissed, guest.State().Phase)
}
