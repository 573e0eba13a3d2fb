package repository

import (
	"context"
	"errors"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
)

var (
	ErrCallNotFound      = errors.New("call not found")
	ErrCallTerminal      = errors.New("call already finished")
	ErrOfferAlreadySet   = errors.New("call offer already written")
	ErrAnswerAlreadySet  = errors.New("call answer already written")
	ErrGuestNotFound     = errors.New("guest not found")
	ErrPropertyNotFound  = errors.New("property not found")
	ErrLockNotFound      = errors.New("lock not found")
	ErrPropertyIDMissing = errors.New("property id is required")
)

// CallRepository is the shared signaling document store. Updates are
// field-level merges, candidates are append-only, and subscribers receive
// the whole current document after every mutation. A subscriber that falls
// behind only ever misses intermediate snapshots, never the latest one.
type CallRepository interface {
	Create(ctx context.Context, call *domain.CallRecord) error
	Get(ctx context.Context, id string) (*domain.CallRecord, error)
	Update(ctx context.Context, id string, patch domain.CallPatch) (*domain.CallRecord, error)
	AppendCandidate(ctx context.Context, id string, entry domain.IceCandidateEntry) error
	Subscribe(ctx context.Context, id string) (<-chan *domain.CallRecord, func(), error)
	ListOpen(ctx context.Context) ([]*domain.CallRecord, error)
}

type GuestRepository interface {
	Create(ctx context.Context, guest *domain.Guest) error
	GetByID(ctx context.Context, id string) (*domain.Guest, error)
	Update(ctx context.Context, guest *domain.Guest) error
	ListByProperty(ctx context.Context, propertyID string) ([]*domain.Guest, error)
}

type PropertyRepository interface {
	Create(ctx context.Context, property *domain.Property) error
	GetByID(ctx context.Context, id string) (*domain.Property, error)
}

// LockRepository is the local copy of the vendor device catalog.
type LockRepository interface {
	Upsert(ctx context.Context, propertyID string, lock *domain.SmartLock) error
	Delete(ctx context.Context, propertyID, deviceID string) error
	ListByProperty(ctx context.Context, propertyID string) ([]*domain.SmartLock, error)
}

// checkPatch applies the write rules shared by every CallRepository
// implementation. It reports whether the patch changes nothing.
func checkPatch(current *domain.CallRecord, patch domain.CallPatch) (noop bool, err error) {
	if current.Status.IsTerminal() {
		if patch.Status != nil && *patch.Status == current.Status &&
			patch.Offer == nil && patch.Answer == nil && patch.SharedLocks == nil {
			return true, nil
		}
		return false, ErrCallTerminal
	}
	if patch.Offer != nil && current.Offer != nil && !domain.SameDescription(current.Offer, patch.Offer) {
		return false, ErrOfferAlreadySet
	}
	if patch.Answer != nil && current.Answer != nil && !domain.SameDescription(current.Answer, patch.Answer) {
		return false, ErrAnswerAlreadySet
	}
	return false, nil
}
