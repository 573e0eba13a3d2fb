package callstate

import (
	"fmt"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
)

// transitionFunc returns the states to pass through, in order. An empty,
// non-nil slice means the event is accepted but changes nothing.
type transitionFunc func(s State, e Event) ([]State, error)

var table = map[Kind]map[EventKind]transitionFunc{
	KindIdle: {
		EventOwnerStartCall: startCall,
	},
	KindRequestingToken: {
		EventTokenReceived: tokenReceived,
		EventCallEnded:     endCall,
		EventFailure:       fail,
	},
	KindTokenReceived: {
		EventJoinStarted: joinStarted,
		EventOwnerJoined: ownerJoined,
		EventCallEnded:   endCall,
		EventFailure:     fail,
	},
	KindJoining: {
		EventOwnerJoined: ownerJoined,
		EventCallEnded:   endCall,
		EventFailure:     fail,
	},
	KindActive: {
		EventOwnerJoined:     ownerJoined,
		EventGuestJoined:     guestJoined,
		EventParticipantLeft: participantLeft,
		EventCallEnded:       endCall,
		EventFailure:         fail,
	},
	KindEnding: {
		EventCallEnded: endCall,
		EventFailure:   fail,
	},
	KindEnded: {
		EventOwnerStartCall: startCall,
	},
	KindError: {
		EventOwnerStartCall: startCall,
	},
}

// Transition is the pure (state, event) -> states function.
func Transition(s State, e Event) ([]State, error) {
	fn, ok := table[s.Kind][e.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, e.Kind, s.Kind)
	}
	return fn(s.clone(), e)
}

func startCall(s State, e Event) ([]State, error) {
	if e.CallID == "" {
		return nil, fmt.Errorf("%w: %s without call id", ErrInvalidTransition, e.Kind)
	}
	if s.IsTerminal() && s.CallID == e.CallID {
		return nil, fmt.Errorf("%w: %s", ErrStaleCall, e.CallID)
	}
	return []State{{Kind: KindRequestingToken, CallID: e.CallID}}, nil
}

func tokenReceived(s State, e Event) ([]State, error) {
	if e.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidTransition)
	}
	return []State{{Kind: KindTokenReceived, CallID: s.CallID, Token: e.Token}}, nil
}

func joinStarted(s State, _ Event) ([]State, error) {
	return []State{{Kind: KindJoining, CallID: s.CallID, Token: s.Token}}, nil
}

func ownerJoined(s State, e Event) ([]State, error) {
	next := State{Kind: KindActive, CallID: s.CallID, Token: s.Token}
	if s.Kind == KindActive {
		next.Participants = s.Participants
	}
	// A second owner is appended as-is; Validate turns it into an error state.
	next.Participants = append(next.Participants, Participant{ID: e.ParticipantID, Role: domain.RoleOwner})
	return []State{next}, nil
}

func guestJoined(s State, e Event) ([]State, error) {
	if _, ok := s.Participant(domain.RoleGuest); ok {
		return []State{}, nil
	}
	s.Participants = append(s.Participants, Participant{ID: e.ParticipantID, Role: domain.RoleGuest})
	return []State{s}, nil
}

func participantLeft(s State, e Event) ([]State, error) {
	if e.Role == domain.RoleOwner {
		return endCall(s, Event{Kind: EventCallEnded, Reason: "owner left"})
	}
	kept := s.Participants[:0]
	for _, p := range s.Participants {
		if p.Role == e.Role && (e.ParticipantID == "" || p.ID == e.ParticipantID) {
			continue
		}
		kept = append(kept, p)
	}
	s.Participants = kept
	return []State{s}, nil
}

func endCall(s State, e Event) ([]State, error) {
	reason := e.Reason
	if reason == "" {
		reason = "call ended"
	}
	ended := State{Kind: KindEnded, CallID: s.CallID, Reason: reason}
	if s.Kind == KindEnding {
		ended.Reason = s.Reason
		return []State{ended}, nil
	}
	return []State{
		{Kind: KindEnding, CallID: s.CallID, Reason: reason},
		ended,
	}, nil
}

func fail(s State, e Event) ([]State, error) {
	err := e.Err
	if err == nil {
		err = fmt.Errorf("unspecified failure in %s", s.Kind)
	}
	return []State{Failed(s, err)}, nil
}
