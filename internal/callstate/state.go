// Package callstate holds the owner-side call lifecycle: a tagged state
// value, a pure transition function and a Machine that applies it.
package callstate

import (
	"errors"
	"fmt"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
)

type Kind string

const (
	KindIdle            Kind = "idle"
	KindRequestingToken Kind = "requesting_token"
	KindTokenReceived   Kind = "token_received"
	KindJoining         Kind = "joining"
	KindActive          Kind = "active"
	KindEnding          Kind = "ending"
	KindEnded           Kind = "ended"
	KindError           Kind = "error"
)

// Kinds lists every state tag. The transition table must cover all of them.
var Kinds = []Kind{
	KindIdle, KindRequestingToken, KindTokenReceived, KindJoining,
	KindActive, KindEnding, KindEnded, KindError,
}

type Participant struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// State is a tagged variant. Only the fields relevant to Kind are set:
//
//	requesting_token:      CallID
//	token_received/joining: CallID, Token
//	active:                CallID, Token, Participants
//	ending/ended:          CallID, Reason
//	error:                 Err, Previous
type State struct {
	Kind         Kind          `json:"kind"`
	CallID       string        `json:"call_id,omitempty"`
	Token        string        `json:"-"`
	Participants []Participant `json:"participants,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Err          error         `json:"-"`
	Previous     *State        `json:"previous,omitempty"`
}

func Idle() State { return State{Kind: KindIdle} }

func (s State) IsTerminal() bool {
	return s.Kind == KindEnded || s.Kind == KindError
}

// Participant returns the participant holding role, if any.
func (s State) Participant(role domain.Role) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Role == role {
			return p, true
		}
	}
	return Participant{}, false
}

func (s State) clone() State {
	out := s
	out.Participants = append([]Participant(nil), s.Participants...)
	if s.Previous != nil {
		prev := s.Previous.clone()
		out.Previous = &prev
	}
	return out
}

var (
	ErrInvariantViolation = errors.New("call state invariant violated")
	ErrInvalidTransition  = errors.New("event not allowed in current state")
	ErrStaleCall          = errors.New("call id already used by the previous call")
	ErrOtherCall          = errors.New("machine is tracking another call")
)

// Validate checks the structural invariants of a state.
func Validate(s State) error {
	switch s.Kind {
	case KindActive:
		if s.CallID == "" {
			return fmt.Errorf("%w: active state without call id", ErrInvariantViolation)
		}
		if len(s.Participants) > 2 {
			return fmt.Errorf("%w: %d participants", ErrInvariantViolation, len(s.Participants))
		}
		seen := make(map[domain.Role]struct{}, len(s.Participants))
		for _, p := range s.Participants {
			if !p.Role.IsValid() {
				return fmt.Errorf("%w: unknown role %q", ErrInvariantViolation, p.Role)
			}
			if _, dup := seen[p.Role]; dup {
				return fmt.Errorf("%w: duplicate %s participant", ErrInvariantViolation, p.Role)
			}
			seen[p.Role] = struct{}{}
		}
		if _, ok := seen[domain.RoleOwner]; !ok {
			return fmt.Errorf("%w: active state without owner", ErrInvariantViolation)
		}
	case KindRequestingToken, KindTokenReceived, KindJoining, KindEnding:
		if s.CallID == "" {
			return fmt.Errorf("%w: %s state without call id", ErrInvariantViolation, s.Kind)
		}
	case KindError:
		if s.Err == nil {
			return fmt.Errorf("%w: error state without cause", ErrInvariantViolation)
		}
	}
	return nil
}

// Failed builds the error state that records prev for diagnostics.
func Failed(prev State, err error) State {
	p := prev.clone()
	return State{Kind: KindError, CallID: prev.CallID, Err: err, Previous: &p}
}
