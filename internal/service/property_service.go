package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/access"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrNameRequired       = errors.New("name is required")
	ErrOwnerRequired      = errors.New("owner is required")
	ErrInvalidMasterPIN   = errors.New("master pin must be 4 digits")
	ErrDeviceIDRequired   = errors.New("device id is required")
	ErrGuestRequired      = errors.New("guest is required")
	ErrGuestWrongProperty = errors.New("guest belongs to another property")
	ErrInvalidGuestPIN    = errors.New("guest pin must be 4 digits")
	ErrPINInUse           = errors.New("pin already in use on this property")
	ErrPINsExhausted      = errors.New("no unused pin found for this property")
)

// maxPINAttempts bounds how many generated PINs are tried before giving up.
const maxPINAttempts = 64

// CreatedProperty carries the owner token that manages the new property.
type CreatedProperty struct {
	Property *domain.Property
	Token    string
}

type PropertyService struct {
	properties repository.PropertyRepository
	guests     repository.GuestRepository
	locks      repository.LockRepository
	tokens     *TokenService
	log        *slog.Logger
	newPIN     func() (string, error)
}

type PropertyOption func(*PropertyService)

// WithPINGenerator replaces the source of guest PINs.
func WithPINGenerator(gen func() (string, error)) PropertyOption {
	return func(s *PropertyService) {
		s.newPIN = gen
	}
}

func NewPropertyService(
	properties repository.PropertyRepository,
	guests repository.GuestRepository,
	locks repository.LockRepository,
	tokens *TokenService,
	log *slog.Logger,
	opts ...PropertyOption,
) *PropertyService {
	if log == nil {
		log = slog.Default()
	}
	s := &PropertyService{
		properties: properties,
		guests:     guests,
		locks:      locks,
		tokens:     tokens,
		log:        log,
		newPIN:     access.GeneratePIN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PropertyService) CreateProperty(ctx context.Context, ownerID, name, masterPIN string) (*CreatedProperty, error) {
	const op = "service.property.CreateProperty"
	log := s.log.With("op", op, "owner_id", ownerID)

	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNameRequired)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrOwnerRequired)
	}
	if masterPIN != "" && !validPIN(masterPIN) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidMasterPIN)
	}

	property := &domain.Property{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		MasterPIN: masterPIN,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.properties.Create(ctx, property); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token, err := s.tokens.IssueProperty(property.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("property created", "property_id", property.ID)
	return &CreatedProperty{Property: property, Token: token}, nil
}

func (s *PropertyService) GetProperty(ctx context.Context, id string) (*domain.Property, error) {
	return s.properties.GetByID(ctx, id)
}

// CreateGuest registers a visitor with a freshly generated PIN.
func (s *PropertyService) CreateGuest(ctx context.Context, propertyID, name string, start, end time.Time, allowedLocks []string) (*domain.Guest, error) {
	const op = "service.property.CreateGuest"
	log := s.log.With("op", op, "property_id", propertyID)

	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNameRequired)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidWindow)
	}
	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pin, err := s.unusedPIN(ctx, property)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	guest := domain.NewGuest(propertyID, name, pin, start, end, allowedLocks)
	if err := s.guests.Create(ctx, guest); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("guest created", "guest_id", guest.ID, "allowed_locks", len(guest.AllowedLocks))
	return guest, nil
}

func (s *PropertyService) UpdateGuest(ctx context.Context, guest *domain.Guest) error {
	const op = "service.property.UpdateGuest"
	if guest == nil {
		return fmt.Errorf("%s: %w", op, ErrGuestRequired)
	}
	if strings.TrimSpace(guest.Name) == "" {
		return fmt.Errorf("%s: %w", op, ErrNameRequired)
	}
	current, err := s.guests.GetByID(ctx, guest.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if current.PropertyID != guest.PropertyID {
		return fmt.Errorf("%s: %w", op, ErrGuestWrongProperty)
	}
	if guest.AccessPIN == "" {
		guest.AccessPIN = current.AccessPIN
	}
	if guest.AccessPIN != current.AccessPIN {
		if err := s.checkPINFree(ctx, guest.PropertyID, guest.ID, guest.AccessPIN); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	guest.CreatedAt = current.CreatedAt
	guest.UpdatedAt = time.Now().UTC()
	if err := s.guests.Update(ctx, guest); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RegenerateGuestPIN replaces a guest's PIN. The old one stops working on
// the next submission since verdicts are never cached.
func (s *PropertyService) RegenerateGuestPIN(ctx context.Context, propertyID, guestID string) (*domain.Guest, error) {
	const op = "service.property.RegenerateGuestPIN"
	log := s.log.With("op", op, "property_id", propertyID, "guest_id", guestID)

	guest, err := s.guests.GetByID(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if guest.PropertyID != propertyID {
		return nil, fmt.Errorf("%s: %w", op, ErrGuestWrongProperty)
	}
	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pin, err := s.unusedPIN(ctx, property)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	guest.AccessPIN = pin
	guest.UpdatedAt = time.Now().UTC()
	if err := s.guests.Update(ctx, guest); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("guest pin regenerated")
	return guest, nil
}

func (s *PropertyService) ListGuests(ctx context.Context, propertyID string) ([]*domain.Guest, error) {
	return s.guests.ListByProperty(ctx, propertyID)
}

// UpsertLock mirrors one vendor device into the local roster.
func (s *PropertyService) UpsertLock(ctx context.Context, propertyID string, lock *domain.SmartLock) error {
	const op = "service.property.UpsertLock"
	if lock == nil || strings.TrimSpace(lock.DeviceID) == "" {
		return fmt.Errorf("%s: %w", op, ErrDeviceIDRequired)
	}
	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.locks.Upsert(ctx, propertyID, lock); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("lock synced", "op", op, "property_id", propertyID, "device_id", lock.DeviceID)
	return nil
}

// RemoveLock drops a device from the roster, which revokes it from every
// guest and every live call at once.
func (s *PropertyService) RemoveLock(ctx context.Context, propertyID, deviceID string) error {
	const op = "service.property.RemoveLock"
	if err := s.locks.Delete(ctx, propertyID, deviceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("lock removed", "op", op, "property_id", propertyID, "device_id", deviceID)
	return nil
}

func (s *PropertyService) ListLocks(ctx context.Context, propertyID string) ([]*domain.SmartLock, error) {
	return s.locks.ListByProperty(ctx, propertyID)
}

// takenPINs lists the PINs that already open something on the property:
// its master PIN and every guest PIN except skipGuestID's.
func (s *PropertyService) takenPINs(ctx context.Context, property *domain.Property, skipGuestID string) (map[string]struct{}, error) {
	guests, err := s.guests.ListByProperty(ctx, property.ID)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(guests)+1)
	if property.MasterPIN != "" {
		taken[property.MasterPIN] = struct{}{}
	}
	for _, g := range guests {
		if g.ID == skipGuestID {
			continue
		}
		taken[g.AccessPIN] = struct{}{}
	}
	return taken, nil
}

// unusedPIN draws PINs until one matches neither the master PIN nor any
// guest of the property. The regenerated guest's own PIN counts as taken.
func (s *PropertyService) unusedPIN(ctx context.Context, property *domain.Property) (string, error) {
	taken, err := s.takenPINs(ctx, property, "")
	if err != nil {
		return "", err
	}
	for i := 0; i < maxPINAttempts; i++ {
		pin, err := s.newPIN()
		if err != nil {
			return "", err
		}
		if _, ok := taken[pin]; !ok {
			return pin, nil
		}
	}
	s.log.Warn("pin space exhausted", "op", "service.property.unusedPIN", "property_id", property.ID, "taken", len(taken))
	return "", ErrPINsExhausted
}

func (s *PropertyService) checkPINFree(ctx context.Context, propertyID, guestID, pin string) error {
	if !validPIN(pin) {
		return ErrInvalidGuestPIN
	}
	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return err
	}
	taken, err := s.takenPINs(ctx, property, guestID)
	if err != nil {
		return err
	}
	if _, ok := taken[pin]; ok {
		return ErrPINInUse
	}
	return nil
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
