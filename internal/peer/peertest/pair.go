// Package peertest provides linked in-memory peer connections for tests.
package peertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/developer387/doorbell-app-sub000/internal/peer"
	"github.com/pion/webrtc/v3"
)

var (
	ErrNoRemoteDescription = errors.New("remote description not set")
	ErrClosed              = errors.New("connection closed")
)

// Conn simulates a peer connection. It gathers Candidates local candidates
// after SetLocalDescription and reports connected once both descriptions are
// set and at least one remote candidate has been applied. Callbacks run on
// their own goroutines, as they do with a real transport.
type Conn struct {
	Name       string
	Candidates int

	mu      sync.Mutex
	local   *webrtc.SessionDescription
	remote  *webrtc.SessionDescription
	applied []webrtc.ICECandidateInit
	state   peer.ConnectionState
	closed  bool
	other   *Conn

	onICE   func(*webrtc.ICECandidateInit)
	onTrack func(peer.Track)
	onState func(peer.ConnectionState)
}

// NewPair returns two connections that reach each other.
func NewPair() (*Conn, *Conn) {
	a := &Conn{Name: "a", Candidates: 2, state: peer.StateNew}
	b := &Conn{Name: "b", Candidates: 2, state: peer.StateNew}
	a.other, b.other = b, a
	return a, b
}

// Factory hands out the given connections in order.
func Factory(conns ...*Conn) peer.Factory {
	var mu sync.Mutex
	return peer.FactoryFunc(func() (peer.Connection, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(conns) == 0 {
			return nil, errors.New("no connection left")
		}
		c := conns[0]
		conns = conns[1:]
		return c, nil
	})
}

func (c *Conn) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-from-" + c.Name}, nil
}

func (c *Conn) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if c.remote == nil {
		return webrtc.SessionDescription{}, ErrNoRemoteDescription
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-from-" + c.Name}, nil
}

func (c *Conn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gather := c.local == nil
	d := desc
	c.local = &d
	onICE := c.onICE
	n := c.Candidates
	c.mu.Unlock()

	if gather && onICE != nil {
		go func() {
			for i := 0; i < n; i++ {
				idx := uint16(i)
				mid := "0"
				onICE(&webrtc.ICECandidateInit{
					Candidate:     fmt.Sprintf("candidate:%s-%d 1 udp 2130706431 10.0.0.1 5000%d typ host", c.Name, i, i),
					SDPMid:        &mid,
					SDPMLineIndex: &idx,
				})
			}
			onICE(nil)
		}()
	}
	c.checkConnected()
	return nil
}

func (c *Conn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	d := desc
	c.remote = &d
	c.mu.Unlock()

	c.checkConnected()
	return nil
}

func (c *Conn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.remote == nil {
		c.mu.Unlock()
		return ErrNoRemoteDescription
	}
	c.applied = append(c.applied, candidate)
	c.mu.Unlock()

	c.checkConnected()
	return nil
}

func (c *Conn) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Conn) OnTrack(fn func(peer.Track)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Conn) OnConnectionStateChange(fn func(peer.ConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	onState := c.onState
	other := c.other
	wasConnected := c.state == peer.StateConnected
	c.state = peer.StateClosed
	c.mu.Unlock()

	if onState != nil {
		go onState(peer.StateClosed)
	}
	if other != nil && wasConnected {
		other.setState(peer.StateDisconnected)
	}
	return nil
}

// Fail moves the connection to failed, as a lost network path would.
func (c *Conn) Fail() {
	c.setState(peer.StateFailed)
}

// Applied returns the remote candidates added so far, in order.
func (c *Conn) Applied() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.applied...)
}

func (c *Conn) State() peer.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return nil
	}
	d := *c.remote
	return &d
}

func (c *Conn) setState(state peer.ConnectionState) {
	c.mu.Lock()
	if c.closed || c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	onState := c.onState
	c.mu.Unlock()

	if onState != nil {
		go onState(state)
	}
}

func (c *Conn) checkConnected() {
	c.mu.Lock()
	ready := !c.closed && c.local != nil && c.remote != nil && len(c.applied) > 0 &&
		c.state != peer.StateConnected
	if !ready {
		c.mu.Unlock()
		return
	}
	c.state = peer.StateConnected
	onState := c.onState
	onTrack := c.onTrack
	name := c.Name
	c.mu.Unlock()

	go func() {
		if onState != nil {
			onState(peer.StateConnecting)
			onState(peer.StateConnected)
		}
		if onTrack != nil {
			onTrack(peer.Track{ID: "video-" + name, StreamID: "stream-" + name, Kind: "video"})
		}
	}()
}
