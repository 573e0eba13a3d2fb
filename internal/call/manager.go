package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/developer387/doorbell-app-sub000/internal/callstate"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/notify"
	"github.com/developer387/doorbell-app-sub000/internal/peer"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
)

// IncomingCall is handed to OnIncoming handlers for every ring.
type IncomingCall struct {
	CallID     string
	PropertyID string
	Accept     func(ctx context.Context) (*OwnerSession, error)
	Decline    func(ctx context.Context) error
}

// Manager owns the owner-side sessions of one client and turns ring
// notifications into IncomingCall values. All sessions dispatch through one
// callstate machine, so a client answers at most one call at a time.
type Manager struct {
	ownerID string
	channel *signaling.Channel
	factory peer.Factory
	tokens  TokenIssuer
	machine *callstate.Machine
	log     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*OwnerSession
	closed   bool

	incomingMu sync.RWMutex
	incoming   []func(*IncomingCall)

	rings       <-chan notify.Ring
	cancelRings func()
	done        chan struct{}
	stopped     chan struct{}
}

// NewManager subscribes to rings for propertyID (all properties when empty)
// and starts dispatching them.
func NewManager(
	ownerID, propertyID string,
	rings notify.Subscriber,
	channel *signaling.Channel,
	factory peer.Factory,
	tokens TokenIssuer,
	machine *callstate.Machine,
	log *slog.Logger,
) (*Manager, error) {
	const op = "call.manager.New"
	if log == nil {
		log = slog.Default()
	}
	if machine == nil {
		machine = callstate.NewMachine(log)
	}

	ch, cancel, err := rings.SubscribeRings(propertyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := &Manager{
		ownerID:     ownerID,
		channel:     channel,
		factory:     factory,
		tokens:      tokens,
		machine:     machine,
		log:         log,
		sessions:    make(map[string]*OwnerSession),
		rings:       ch,
		cancelRings: cancel,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go m.dispatchLoop()
	return m, nil
}

// OnIncoming registers fn for every ring. Handlers run on the dispatch
// goroutine in registration order.
func (m *Manager) OnIncoming(fn func(*IncomingCall)) {
	m.incomingMu.Lock()
	m.incoming = append(m.incoming, fn)
	m.incomingMu.Unlock()
}

// Accept answers callID. Accepting a call that already has a live session
// returns that session. While another call is live the shared machine
// rejects the start and no peer connection is created.
func (m *Manager) Accept(ctx context.Context, callID, propertyID string) (*OwnerSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[callID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s := NewOwnerSession(callID, propertyID, m.ownerID, m.channel, m.factory, m.tokens, m.machine, m.log)
	s.onClose = func() { m.removeSession(callID) }
	m.sessions[callID] = s
	m.mu.Unlock()

	if err := s.Accept(ctx); err != nil {
		m.removeSession(callID)
		return nil, err
	}
	m.log.Info("call accepted", "op", "call.manager.Accept", "call_id", callID)
	return s, nil
}

// Decline rejects a ringing call.
func (m *Manager) Decline(ctx context.Context, callID string) error {
	const op = "call.manager.Decline"

	if _, err := m.channel.SetStatus(ctx, callID, domain.CallStatusDeclined); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.log.Info("call declined", "op", op, "call_id", callID)
	return nil
}

// State is the state of the client's call machine.
func (m *Manager) State() callstate.State { return m.machine.State() }

func (m *Manager) Session(callID string) (*OwnerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[callID]
	return s, ok
}

func (m *Manager) removeSession(callID string) {
	m.mu.Lock()
	delete(m.sessions, callID)
	m.mu.Unlock()
}

// Close stops ring dispatch and hangs up every live session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*OwnerSession)
	m.mu.Unlock()

	close(m.done)
	m.cancelRings()
	<-m.stopped

	for _, s := range sessions {
		_ = s.Hangup(ctx)
	}
}

func (m *Manager) dispatchLoop() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			return
		case ring, ok := <-m.rings:
			if !ok {
				return
			}
			m.dispatch(ring)
		}
	}
}

func (m *Manager) dispatch(ring notify.Ring) {
	m.log.Info("incoming call", "op", "call.manager.dispatch", "call_id", ring.CallID, "property_id", ring.PropertyID)

	ic := &IncomingCall{
		CallID:     ring.CallID,
		PropertyID: ring.PropertyID,
		Accept: func(ctx context.Context) (*OwnerSession, error) {
			return m.Accept(ctx, ring.CallID, ring.PropertyID)
		},
		Decline: func(ctx context.Context) error {
			return m.Decline(ctx, ring.CallID)
		},
	}

	m.incomingMu.RLock()
	handlers := make([]func(*IncomingCall), len(m.incoming))
	copy(handlers, m.incoming)
	m.incomingMu.RUnlock()

	for _, fn := range handlers {
		fn(ic)
	}
}
