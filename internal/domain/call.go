package domain

import (
	"time"

	"github.com/pion/webrtc/v3"
)

type CallStatus string

const (
	CallStatusPending   CallStatus = "pending"
	CallStatusCalling   CallStatus = "calling"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusMissed    CallStatus = "missed"
	CallStatusDeclined  CallStatus = "declined"
	CallStatusTimeout   CallStatus = "timeout"
	CallStatusFailed    CallStatus = "failed"
)

// IsTerminal reports whether a record with this status can never change again.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusEnded, CallStatusMissed, CallStatusDeclined, CallStatusTimeout, CallStatusFailed:
		return true
	}
	return false
}

func (s CallStatus) IsValid() bool {
	switch s {
	case CallStatusPending, CallStatusCalling, CallStatusConnected,
		CallStatusEnded, CallStatusMissed, CallStatusDeclined, CallStatusTimeout, CallStatusFailed:
		return true
	}
	return false
}

type Role string

const (
	RoleOwner Role = "owner"
	RoleGuest Role = "guest"
)

func (r Role) IsValid() bool {
	return r == RoleOwner || r == RoleGuest
}

// Remote returns the counterpart role.
func (r Role) Remote() Role {
	if r == RoleOwner {
		return RoleGuest
	}
	return RoleOwner
}

type IceCandidateEntry struct {
	From      Role                    `json:"from"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// CallRecord is the shared signaling document for one ring attempt.
// A new ring always creates a new record; terminal records are never reopened.
type CallRecord struct {
	ID            string                     `json:"id"`
	PropertyID    string                     `json:"propertyId"`
	Status        CallStatus                 `json:"status"`
	Offer         *webrtc.SessionDescription `json:"callOffer,omitempty"`
	Answer        *webrtc.SessionDescription `json:"callAnswer,omitempty"`
	IceCandidates []IceCandidateEntry        `json:"iceCandidates"`
	SharedLocks   []SharedLock               `json:"sharedLocks,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
}

// Clone returns a deep copy so snapshots handed to observers can't alias store state.
func (c *CallRecord) Clone() *CallRecord {
	if c == nil {
		return nil
	}
	out := *c
	out.Offer = CopyDescription(c.Offer)
	out.Answer = CopyDescription(c.Answer)
	out.IceCandidates = append([]IceCandidateEntry(nil), c.IceCandidates...)
	if c.SharedLocks != nil {
		out.SharedLocks = append([]SharedLock(nil), c.SharedLocks...)
	}
	return &out
}

// CandidatesFrom returns the candidates published by role, in insertion order.
func (c *CallRecord) CandidatesFrom(role Role) []webrtc.ICECandidateInit {
	out := make([]webrtc.ICECandidateInit, 0, len(c.IceCandidates))
	for _, entry := range c.IceCandidates {
		if entry.From == role {
			out = append(out, entry.Candidate)
		}
	}
	return out
}

// CallPatch is a field-level update; nil fields are left untouched.
type CallPatch struct {
	Status      *CallStatus
	Offer       *webrtc.SessionDescription
	Answer      *webrtc.SessionDescription
	SharedLocks []SharedLock
}

func NewCallRecord(propertyID string, offer *webrtc.SessionDescription) *CallRecord {
	now := time.Now().UTC()
	return &CallRecord{
		PropertyID:    propertyID,
		Status:        CallStatusCalling,
		Offer:         offer,
		IceCandidates: []IceCandidateEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CopyDescription keeps only the wire fields of a session description.
func CopyDescription(d *webrtc.SessionDescription) *webrtc.SessionDescription {
	if d == nil {
		return nil
	}
	return &webrtc.SessionDescription{Type: d.Type, SDP: d.SDP}
}

// SameDescription compares session descriptions by their wire fields.
func SameDescription(a, b *webrtc.SessionDescription) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Type == b.Type && a.SDP == b.SDP
}
