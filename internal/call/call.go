// Package call runs the two ends of a doorbell call on top of the signaling
// channel: the visitor's GuestSession that rings, and the owner's
// OwnerSession that answers, plus a Manager that turns ring notifications
// into incoming calls.
package call

import (
	"errors"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
)

var (
	ErrSessionStarted   = errors.New("call session already started")
	ErrSessionClosed    = errors.New("call session closed")
	ErrCallFinished     = errors.New("call already finished")
	ErrConnectionFailed = errors.New("connection failed, try again")
	ErrMissingOffer     = errors.New("call has no offer")
	ErrManagerClosed    = errors.New("call manager closed")
)

// TokenIssuer signs call-scoped tokens.
type TokenIssuer interface {
	Issue(callID, propertyID string, role domain.Role) (string, error)
}
