package callstate

import "github.com/developer387/doorbell-app-sub000/internal/domain"

type EventKind string

const (
	EventOwnerStartCall  EventKind = "OWNER_START_CALL"
	EventTokenReceived   EventKind = "TOKEN_RECEIVED"
	EventJoinStarted     EventKind = "JOIN_STARTED"
	EventOwnerJoined     EventKind = "OWNER_JOINED"
	EventGuestJoined     EventKind = "GUEST_JOINED"
	EventParticipantLeft EventKind = "PARTICIPANT_LEFT"
	EventCallEnded       EventKind = "CALL_ENDED"
	EventFailure         EventKind = "FAILURE"
)

var EventKinds = []EventKind{
	EventOwnerStartCall, EventTokenReceived, EventJoinStarted, EventOwnerJoined,
	EventGuestJoined, EventParticipantLeft, EventCallEnded, EventFailure,
}

type Event struct {
	Kind          EventKind
	CallID        string
	Token         string
	ParticipantID string
	Role          domain.Role
	Reason        string
	Err           error
}

func OwnerStartCall(callID string) Event {
	return Event{Kind: EventOwnerStartCall, CallID: callID}
}

func TokenReceived(token string) Event {
	return Event{Kind: EventTokenReceived, Token: token}
}

func JoinStarted() Event { return Event{Kind: EventJoinStarted} }

func OwnerJoined(participantID string) Event {
	return Event{Kind: EventOwnerJoined, ParticipantID: participantID, Role: domain.RoleOwner}
}

func GuestJoined(participantID string) Event {
	return Event{Kind: EventGuestJoined, ParticipantID: participantID, Role: domain.RoleGuest}
}

func ParticipantLeft(role domain.Role, participantID string) Event {
	return Event{Kind: EventParticipantLeft, Role: role, ParticipantID: participantID}
}

func CallEnded(reason string) Event {
	return Event{Kind: EventCallEnded, Reason: reason}
}

func Failure(err error) Event {
	return Event{Kind: EventFailure, Err: err}
}
