package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/developer387/doorbell-app-sub000/internal/callstate"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/ice"
	"github.com/developer387/doorbell-app-sub000/internal/peer"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

// OwnerSession answers one call. Its lifecycle is the callstate machine:
// requesting_token, token_received, joining, active, then ended or error.
// Sessions of one client share a machine so only one of them can be live.
type OwnerSession struct {
	callID     string
	propertyID string
	ownerID    string

	channel *signaling.Channel
	factory peer.Factory
	tokens  TokenIssuer
	machine *callstate.Machine
	log     *slog.Logger
	loop    *eventLoop
	onClose func()

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	started     bool
	finished    bool
	pc          peer.Connection
	queue       *ice.Queue
	unsubscribe func()
}

func NewOwnerSession(
	callID, propertyID, ownerID string,
	channel *signaling.Channel,
	factory peer.Factory,
	tokens TokenIssuer,
	machine *callstate.Machine,
	log *slog.Logger,
) *OwnerSession {
	if log == nil {
		log = slog.Default()
	}
	if machine == nil {
		machine = callstate.NewMachine(log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &OwnerSession{
		callID:     callID,
		propertyID: propertyID,
		ownerID:    ownerID,
		channel:    channel,
		factory:    factory,
		tokens:     tokens,
		machine:    machine,
		log:        log,
		loop:       newEventLoop(),
		ctx:        ctx,
		cancel:     cancel,
		queue:      ice.NewQueue(),
	}
}

func (s *OwnerSession) CallID() string { return s.callID }

// State is the machine state while this call is the one it tracks. A
// session whose call the machine is not tracking reports ended.
func (s *OwnerSession) State() callstate.State {
	st := s.machine.State()
	if st.CallID != "" && st.CallID != s.callID {
		return callstate.State{Kind: callstate.KindEnded, CallID: s.callID, Reason: "not the current call"}
	}
	return st
}

// OnStateChange registers fn for the changes of this call only.
func (s *OwnerSession) OnStateChange(fn callstate.Listener) func() {
	return s.machine.Subscribe(func(next, prev callstate.State) {
		if next.CallID == s.callID {
			fn(next, prev)
		}
	})
}

// Done is closed once the session is torn down.
func (s *OwnerSession) Done() <-chan struct{} {
	return s.loop.done
}

// Accept joins the call: it obtains an owner token, answers the guest's
// offer and starts exchanging candidates.
func (s *OwnerSession) Accept(ctx context.Context) error {
	return s.loop.call(ctx, func() error { return s.accept(ctx) })
}

// Hangup leaves the call and marks it ended for the guest. It is safe to
// call more than once.
func (s *OwnerSession) Hangup(ctx context.Context) error {
	err := s.loop.call(ctx, func() error {
		if s.finished {
			return nil
		}
		if s.started {
			s.writeStatus(domain.CallStatusEnded)
			s.dispatch(callstate.ParticipantLeft(domain.RoleOwner, s.ownerID))
		}
		s.teardown()
		return nil
	})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

func (s *OwnerSession) accept(ctx context.Context) error {
	const op = "call.owner.Accept"
	log := s.log.With("op", op, "call_id", s.callID)

	if s.started {
		return ErrSessionStarted
	}
	s.started = true

	if _, err := s.machine.Dispatch(callstate.OwnerStartCall(s.callID)); err != nil {
		s.teardown()
		return fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.tokens.Issue(s.callID, s.propertyID, domain.RoleOwner)
	if err != nil {
		log.Error("failed to issue owner token", sl.Err(err))
		return s.abort(op, err, false)
	}
	s.dispatch(callstate.TokenReceived(token))
	s.dispatch(callstate.JoinStarted())

	call, err := s.channel.Get(ctx, s.callID)
	if err != nil {
		log.Error("failed to load call", sl.Err(err))
		return s.abort(op, err, false)
	}
	if call.Status.IsTerminal() {
		log.Info("call finished before it was answered", "status", call.Status)
		s.dispatch(callstate.CallEnded(string(call.Status)))
		s.teardown()
		return fmt.Errorf("%s: %w", op, ErrCallFinished)
	}
	if call.Offer == nil {
		return s.abort(op, ErrMissingOffer, true)
	}

	pc, err := s.factory.NewConnection()
	if err != nil {
		log.Error("failed to create peer connection", sl.Err(err))
		return s.abort(op, err, true)
	}
	s.pc = pc

	s.queue.Reset(s.callID)
	s.queue.AssignDestination(s.callID)

	pc.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		if c == nil {
			return
		}
		candidate := *c
		s.loop.post(func() { s.onLocalCandidate(candidate) })
	})
	pc.OnConnectionStateChange(func(state peer.ConnectionState) {
		s.loop.post(func() { s.onConnectionState(state) })
	})
	pc.OnTrack(func(track peer.Track) {
		log.Info("remote track started", "kind", track.Kind, "track_id", track.ID)
	})

	if err := pc.SetRemoteDescription(*call.Offer); err != nil {
		log.Error("failed to apply offer", sl.Err(err))
		return s.abort(op, err, true)
	}
	for _, c := range s.queue.RemoteDescriptionSet() {
		s.applyRemote(c)
	}

	answer, err := pc.CreateAnswer(ctx)
	if err != nil {
		log.Error("failed to create answer", sl.Err(err))
		return s.abort(op, err, true)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Error("failed to set local description", sl.Err(err))
		return s.abort(op, err, true)
	}

	if err := s.channel.WriteAnswer(ctx, s.callID, &answer); err != nil {
		if errors.Is(err, signaling.ErrCallTerminal) {
			s.dispatch(callstate.CallEnded("call finished before answer"))
			s.teardown()
			return fmt.Errorf("%s: %w", op, ErrCallFinished)
		}
		log.Error("failed to write answer", sl.Err(err))
		return s.abort(op, err, true)
	}

	if _, err := s.machine.DispatchFor(s.callID, callstate.OwnerJoined(s.ownerID)); err != nil {
		s.teardown()
		return fmt.Errorf("%s: %w", op, err)
	}

	unsubscribe, err := s.channel.Subscribe(s.ctx, s.callID, func(call *domain.CallRecord) {
		s.loop.post(func() { s.onRecord(call) })
	})
	if err != nil {
		log.Error("failed to subscribe to call", sl.Err(err))
		return s.abort(op, err, true)
	}
	s.unsubscribe = unsubscribe

	log.Info("call answered")
	return nil
}

func (s *OwnerSession) onLocalCandidate(c webrtc.ICECandidateInit) {
	if s.finished {
		return
	}
	if _, ok := s.queue.AddLocal(c); !ok {
		return
	}
	if err := s.channel.AppendIceCandidate(s.ctx, s.callID, domain.RoleOwner, c); err != nil {
		s.log.Warn("failed to send candidate", "op", "call.owner.onLocalCandidate", "call_id", s.callID, sl.Err(err))
	}
}

func (s *OwnerSession) onRecord(call *domain.CallRecord) {
	if s.finished {
		return
	}
	if call.Status.IsTerminal() {
		s.log.Info("call finished by guest", "op", "call.owner.onRecord", "call_id", s.callID, "status", call.Status)
		s.dispatch(callstate.CallEnded(string(call.Status)))
		s.teardown()
		return
	}
	for _, c := range s.queue.AddRemoteAll(call.CandidatesFrom(domain.RoleGuest)) {
		s.applyRemote(c)
	}
}

func (s *OwnerSession) applyRemote(c webrtc.ICECandidateInit) {
	if err := s.pc.AddICECandidate(c); err != nil {
		s.log.Warn("failed to add remote candidate", "op", "call.owner.applyRemote", "call_id", s.callID, sl.Err(err))
	}
}

func (s *OwnerSession) onConnectionState(state peer.ConnectionState) {
	if s.finished {
		return
	}
	s.log.Debug("connection state changed", "op", "call.owner.onConnectionState", "call_id", s.callID, "state", state)

	switch state {
	case peer.StateConnected:
		s.dispatch(callstate.GuestJoined("guest:" + s.callID))
		s.writeStatus(domain.CallStatusConnected)
	case peer.StateFailed:
		s.writeStatus(domain.CallStatusFailed)
		s.dispatch(callstate.Failure(ErrConnectionFailed))
		s.teardown()
	}
}

// abort records a negotiation failure. When markFailed is set the record is
// closed with the failed status so the guest stops waiting.
func (s *OwnerSession) abort(op string, err error, markFailed bool) error {
	if markFailed {
		s.writeStatus(domain.CallStatusFailed)
	}
	s.dispatch(callstate.Failure(err))
	s.teardown()
	return fmt.Errorf("%s: %w", op, err)
}

func (s *OwnerSession) dispatch(e callstate.Event) {
	if _, err := s.machine.DispatchFor(s.callID, e); err != nil {
		s.log.Debug("call state event not applied", "op", "call.owner.dispatch", "call_id", s.callID, "event", e.Kind, sl.Err(err))
	}
}

func (s *OwnerSession) writeStatus(status domain.CallStatus) {
	if _, err := s.channel.SetStatus(s.ctx, s.callID, status); err != nil && !errors.Is(err, signaling.ErrCallTerminal) {
		s.log.Warn("failed to write call status", "op", "call.owner.writeStatus", "call_id", s.callID, "status", status, sl.Err(err))
	}
}

// teardown unsubscribes before closing the peer connection.
func (s *OwnerSession) teardown() {
	if s.finished {
		return
	}
	s.finished = true
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.log.Warn("failed to close peer connection", "op", "call.owner.teardown", sl.Err(err))
		}
	}
	s.cancel()
	if s.onClose != nil {
		s.onClose()
	}
	s.loop.stop()
}
