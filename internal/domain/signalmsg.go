package domain

import "github.com/pion/webrtc/v3"

const (
	SignalTypeSnapshot     = "snapshot"
	SignalTypeAnswer       = "answer"
	SignalTypeIceCandidate = "ice-candidate"
	SignalTypeStatus       = "status"
	SignalTypeLeave        = "leave"
	SignalTypeError        = "error"
)

// SignalMessage is the envelope exchanged over the call websocket.
type SignalMessage struct {
	Type      string                     `json:"type"` // "snapshot", "answer", "ice-candidate", "status", "leave", "error"
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Status    CallStatus                 `json:"status,omitempty"`
	Call      *CallRecord                `json:"call,omitempty"`
	Error     string                     `json:"error,omitempty"`
}
