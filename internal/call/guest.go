package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/ice"
	"github.com/developer387/doorbell-app-sub000/internal/peer"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

const DefaultUnansweredTimeout = 30 * time.Second

type GuestPhase string

const (
	GuestIdle       GuestPhase = "idle"
	GuestOffering   GuestPhase = "offering"
	GuestRinging    GuestPhase = "ringing"
	GuestConnecting GuestPhase = "connecting"
	GuestActive     GuestPhase = "active"
	GuestTimeout    GuestPhase = "timeout"
	GuestMissed     GuestPhase = "missed"
	GuestDeclined   GuestPhase = "declined"
	GuestEnded      GuestPhase = "ended"
	GuestFailed     GuestPhase = "failed"
)

func (p GuestPhase) IsTerminal() bool {
	switch p {
	case GuestMissed, GuestDeclined, GuestEnded, GuestFailed:
		return true
	default:
		return false
	}
}

type guestListener func(GuestState)

// GuestState is what the visitor's UI renders.
type GuestState struct {
	Phase       GuestPhase
	CallID      string
	SharedLocks []domain.SharedLock
	Err         error
}

type GuestOption func(*GuestSession)

// WithUnansweredTimeout overrides the 30 second ring deadline.
func WithUnansweredTimeout(d time.Duration) GuestOption {
	return func(s *GuestSession) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// GuestSession is the calling side: it offers, rings until answered or timed
// out, and tears everything down when either side ends the call.
type GuestSession struct {
	channel *signaling.Channel
	factory peer.Factory
	log     *slog.Logger
	timeout time.Duration
	loop    *eventLoop

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	started     bool
	answered    bool
	phase       GuestPhase
	callID      string
	pc          peer.Connection
	queue       *ice.Queue
	timer       *time.Timer
	unsubscribe func()

	mu        sync.Mutex
	state     GuestState
	listeners []guestListener
}

func NewGuestSession(channel *signaling.Channel, factory peer.Factory, log *slog.Logger, opts ...GuestOption) *GuestSession {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &GuestSession{
		channel: channel,
		factory: factory,
		log:     log,
		timeout: DefaultUnansweredTimeout,
		loop:    newEventLoop(),
		ctx:     ctx,
		cancel:  cancel,
		phase:   GuestIdle,
		queue:   ice.NewQueue(),
		state:   GuestState{Phase: GuestIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn for every state change. It runs on the session
// goroutine and must not block.
func (s *GuestSession) OnChange(fn func(GuestState)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *GuestSession) State() GuestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.SharedLocks = append([]domain.SharedLock(nil), s.state.SharedLocks...)
	return st
}

// Done is closed once the session is torn down.
func (s *GuestSession) Done() <-chan struct{} {
	return s.loop.done
}

// Ring creates the call record for propertyID and starts waiting for the
// owner. It returns the new call id.
func (s *GuestSession) Ring(ctx context.Context, propertyID string) (string, error) {
	var callID string
	err := s.loop.call(ctx, func() error {
		id, err := s.ring(ctx, propertyID)
		callID = id
		return err
	})
	return callID, err
}

// Hangup ends the call from the visitor's side. It is safe to call more
// than once and after the call has already ended.
func (s *GuestSession) Hangup(ctx context.Context) error {
	err := s.loop.call(ctx, func() error {
		if s.phase.IsTerminal() {
			return nil
		}
		if s.callID != "" {
			s.writeStatus(domain.CallStatusEnded)
		}
		s.finish(GuestEnded, nil)
		return nil
	})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

func (s *GuestSession) ring(ctx context.Context, propertyID string) (string, error) {
	const op = "call.guest.Ring"
	log := s.log.With("op", op, "property_id", propertyID)

	if s.started {
		return "", ErrSessionStarted
	}
	s.started = true
	s.setPhase(GuestOffering)

	pc, err := s.factory.NewConnection()
	if err != nil {
		log.Error("failed to create peer connection", sl.Err(err))
		s.finish(GuestFailed, err)
		return "", err
	}
	s.pc = pc

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

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		log.Error("failed to create offer", sl.Err(err))
		s.finish(GuestFailed, err)
		return "", err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		log.Error("failed to set local description", sl.Err(err))
		s.finish(GuestFailed, err)
		return "", err
	}

	callID, err := s.channel.CreateCall(ctx, propertyID, &offer)
	if err != nil {
		log.Error("failed to create call", sl.Err(err))
		s.finish(GuestFailed, err)
		return "", err
	}
	s.callID = callID
	s.queue.Reset(callID)
	log = log.With("call_id", callID)

	for _, c := range s.queue.AssignDestination(callID) {
		s.sendCandidate(c)
	}

	unsubscribe, err := s.channel.Subscribe(s.ctx, callID, func(call *domain.CallRecord) {
		s.loop.post(func() { s.onRecord(call) })
	})
	if err != nil {
		log.Error("failed to subscribe to call", sl.Err(err))
		s.failCall(err)
		return "", err
	}
	s.unsubscribe = unsubscribe

	s.timer = time.AfterFunc(s.timeout, func() {
		s.loop.post(s.onUnanswered)
	})

	s.setPhase(GuestRinging)
	log.Info("ringing", "timeout", s.timeout)
	return callID, nil
}

func (s *GuestSession) onLocalCandidate(c webrtc.ICECandidateInit) {
	if s.phase.IsTerminal() {
		return
	}
	if _, ok := s.queue.AddLocal(c); ok {
		s.sendCandidate(c)
	}
}

func (s *GuestSession) sendCandidate(c webrtc.ICECandidateInit) {
	if err := s.channel.AppendIceCandidate(s.ctx, s.callID, domain.RoleGuest, c); err != nil {
		s.log.Warn("failed to send candidate", "op", "call.guest.sendCandidate", "call_id", s.callID, sl.Err(err))
	}
}

func (s *GuestSession) onRecord(call *domain.CallRecord) {
	const op = "call.guest.onRecord"
	if s.phase.IsTerminal() || call.ID != s.callID {
		return
	}

	if call.Status.IsTerminal() {
		s.log.Info("call finished by owner", "op", op, "call_id", s.callID, "status", call.Status)
		s.finish(phaseForStatus(call.Status), nil)
		return
	}

	s.setSharedLocks(call.SharedLocks)

	if call.Answer != nil && !s.answered {
		s.answered = true
		s.stopTimer()
		if err := s.pc.SetRemoteDescription(*call.Answer); err != nil {
			s.log.Error("failed to apply answer", "op", op, "call_id", s.callID, sl.Err(err))
			s.failCall(err)
			return
		}
		for _, c := range s.queue.RemoteDescriptionSet() {
			s.applyRemote(c)
		}
		if s.phase == GuestRinging {
			s.setPhase(GuestConnecting)
		}
	}

	for _, c := range s.queue.AddRemoteAll(call.CandidatesFrom(domain.RoleOwner)) {
		s.applyRemote(c)
	}
}

func (s *GuestSession) applyRemote(c webrtc.ICECandidateInit) {
	if err := s.pc.AddICECandidate(c); err != nil {
		s.log.Warn("failed to add remote candidate", "op", "call.guest.applyRemote", "call_id", s.callID, sl.Err(err))
	}
}

func (s *GuestSession) onConnectionState(state peer.ConnectionState) {
	if s.phase.IsTerminal() {
		return
	}
	s.log.Debug("connection state changed", "op", "call.guest.onConnectionState", "call_id", s.callID, "state", state)

	switch state {
	case peer.StateConnected:
		if s.answered {
			s.setPhase(GuestActive)
		}
	case peer.StateFailed:
		s.failCall(ErrConnectionFailed)
	}
}

func (s *GuestSession) onUnanswered() {
	const op = "call.guest.onUnanswered"
	if s.answered || s.phase.IsTerminal() {
		return
	}

	// The answer can be stored before its snapshot reaches the loop.
	call, err := s.channel.Get(s.ctx, s.callID)
	switch {
	case err != nil:
		s.log.Warn("failed to re-read call", "op", op, "call_id", s.callID, sl.Err(err))
	case call.Answer != nil || call.Status.IsTerminal():
		s.onRecord(call)
		return
	}

	s.log.Info("call unanswered", "op", op, "call_id", s.callID, "timeout", s.timeout)
	s.setPhase(GuestTimeout)
	s.writeStatus(domain.CallStatusMissed)
	s.finish(GuestMissed, nil)
}

func (s *GuestSession) failCall(err error) {
	if s.callID != "" {
		s.writeStatus(domain.CallStatusFailed)
	}
	s.finish(GuestFailed, err)
}

func (s *GuestSession) writeStatus(status domain.CallStatus) {
	if _, err := s.channel.SetStatus(s.ctx, s.callID, status); err != nil && !errors.Is(err, signaling.ErrCallTerminal) {
		s.log.Warn("failed to write call status", "op", "call.guest.writeStatus", "call_id", s.callID, "status", status, sl.Err(err))
	}
}

// finish tears the session down: timer, subscription, then peer connection.
func (s *GuestSession) finish(phase GuestPhase, err error) {
	s.stopTimer()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.pc != nil {
		if cerr := s.pc.Close(); cerr != nil {
			s.log.Warn("failed to close peer connection", "op", "call.guest.finish", sl.Err(cerr))
		}
	}
	s.cancel()

	s.mu.Lock()
	s.state.Err = err
	s.mu.Unlock()
	s.setPhase(phase)

	s.loop.stop()
}

func (s *GuestSession) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *GuestSession) setPhase(phase GuestPhase) {
	if s.phase == phase {
		return
	}
	s.phase = phase

	s.mu.Lock()
	s.state.Phase = phase
	s.state.CallID = s.callID
	st := s.state
	listeners := append([]guestListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

func (s *GuestSession) setSharedLocks(locks []domain.SharedLock) {
	s.mu.Lock()
	if sameLocks(s.state.SharedLocks, locks) {
		s.mu.Unlock()
		return
	}
	s.state.SharedLocks = append([]domain.SharedLock(nil), locks...)
	st := s.state
	listeners := append([]guestListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

func sameLocks(a, b []domain.SharedLock) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func phaseForStatus(status domain.CallStatus) GuestPhase {
	switch status {
	case domain.CallStatusDeclined:
		return GuestDeclined
	case domain.CallStatusMissed, domain.CallStatusTimeout:
		return GuestMissed
	case domain.CallStatusFailed:
		return GuestFailed
	default:
		return GuestEnded
	}
}
