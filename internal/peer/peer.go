package peer

import (
	"context"

	"github.com/pion/webrtc/v3"
)

type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

// Track describes a remote media stream that started arriving.
type Track struct {
	ID       string
	StreamID string
	Kind     string
}

// Connection is the peer-connection transport a call session drives.
// OnICECandidate receives nil once gathering is complete.
type Connection interface {
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(*webrtc.ICECandidateInit))
	OnTrack(fn func(Track))
	OnConnectionStateChange(fn func(ConnectionState))
	Close() error
}

// Factory builds one connection per call.
type Factory interface {
	NewConnection() (Connection, error)
}

type FactoryFunc func() (Connection, error)

func (f FactoryFunc) NewConnection() (Connection, error) {
	return f()
}
