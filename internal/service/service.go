package service

import (
	"context"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/pion/webrtc/v3"
)

type CallInteractor interface {
	CreateCall(ctx context.Context, propertyID string, offer *webrtc.SessionDescription) (*CreatedCall, error)
	GetCall(ctx context.Context, callID string) (*domain.CallRecord, error)
	WriteAnswer(ctx context.Context, callID string, role domain.Role, answer *webrtc.SessionDescription) error
	AddCandidate(ctx context.Context, callID string, from domain.Role, candidate webrtc.ICECandidateInit) error
	SetStatus(ctx context.Context, callID string, role domain.Role, status domain.CallStatus) (*domain.CallRecord, error)
	Watch(ctx context.Context, callID string, onChange func(*domain.CallRecord)) (func(), error)
	HandleSignal(ctx context.Context, callID string, role domain.Role, message *domain.SignalMessage) (*domain.SignalMessage, error)
}

type AccessInteractor interface {
	SubmitPIN(ctx context.Context, propertyID, pin string) (*AccessResult, error)
	ShareLocks(ctx context.Context, callID, pin string, deviceIDs []string) (*domain.CallRecord, error)
	Unlock(ctx context.Context, callID, deviceID string) error
	Lock(ctx context.Context, callID, deviceID string) error
	IssueTemporaryCode(ctx context.Context, callID, deviceID string, window domain.TimeWindow) (domain.TemporaryCode, error)
}

type PropertyInteractor interface {
	CreateProperty(ctx context.Context, ownerID, name, masterPIN string) (*CreatedProperty, error)
	GetProperty(ctx context.Context, id string) (*domain.Property, error)
	CreateGuest(ctx context.Context, propertyID, name string, start, end time.Time, allowedLocks []string) (*domain.Guest, error)
	UpdateGuest(ctx context.Context, guest *domain.Guest) error
	RegenerateGuestPIN(ctx context.Context, propertyID, guestID string) (*domain.Guest, error)
	ListGuests(ctx context.Context, propertyID string) ([]*domain.Guest, error)
	UpsertLock(ctx context.Context, propertyID string, lock *domain.SmartLock) error
	RemoveLock(ctx context.Context, propertyID, deviceID string) error
	ListLocks(ctx context.Context, propertyID string) ([]*domain.SmartLock, error)
}

// TokenParser validates bearer tokens for the HTTP layer.
type TokenParser interface {
	Parse(raw string) (*CallClaims, error)
}
