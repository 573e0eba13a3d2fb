package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/developer387/doorbell-app-sub000/internal/access"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/lockvendor"
	"github.com/developer387/doorbell-app-sub000/internal/metrics"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
)

var (
	ErrLockNotAuthorized = errors.New("lock is not authorized for this credential")
	ErrLockNotShared     = errors.New("lock is not shared with this call")
	ErrCallNotConnected  = errors.New("call is not connected")
	ErrCallClosed        = errors.New("call already finished")
	ErrInvalidWindow     = errors.New("time window end must be after start")
)

// AccessResult is what a PIN submission tells the visitor. Outcomes are data,
// not errors: a wrong PIN is a successful evaluation.
type AccessResult struct {
	Verdict       domain.AccessVerdict     `json:"verdict"`
	Message       string                   `json:"message"`
	Authorization domain.LockAuthorization `json:"authorization"`
}

type AccessService struct {
	properties repository.PropertyRepository
	guests     repository.GuestRepository
	locks      repository.LockRepository
	channel    *signaling.Channel
	vendor     lockvendor.Controller
	log        *slog.Logger
	now        func() time.Time
	backOff    func() backoff.BackOff
}

type AccessOption func(*AccessService)

// WithClock replaces the time source used for guest windows.
func WithClock(now func() time.Time) AccessOption {
	return func(s *AccessService) {
		s.now = now
	}
}

// WithVendorBackOff replaces the retry policy for lock vendor calls.
func WithVendorBackOff(newBackOff func() backoff.BackOff) AccessOption {
	return func(s *AccessService) {
		s.backOff = newBackOff
	}
}

func NewAccessService(
	properties repository.PropertyRepository,
	guests repository.GuestRepository,
	locks repository.LockRepository,
	channel *signaling.Channel,
	vendor lockvendor.Controller,
	log *slog.Logger,
	opts ...AccessOption,
) *AccessService {
	if log == nil {
		log = slog.Default()
	}
	s := &AccessService{
		properties: properties,
		guests:     guests,
		locks:      locks,
		channel:    channel,
		vendor:     vendor,
		log:        log,
		now:        time.Now,
		backOff:    defaultVendorBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultVendorBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// SubmitPIN evaluates pin against the property's guests and master code as
// they are stored right now, and resolves the locks the verdict covers.
func (s *AccessService) SubmitPIN(ctx context.Context, propertyID, pin string) (*AccessResult, error) {
	const op = "service.access.SubmitPIN"
	log := s.log.With("op", op, "property_id", propertyID)

	verdict, roster, err := s.evaluate(ctx, propertyID, pin)
	if err != nil {
		log.Error("failed to evaluate pin", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.AccessVerdictsTotal.WithLabelValues(string(verdict.Kind)).Inc()

	result := &AccessResult{Verdict: verdict, Message: verdict.Message()}
	if verdict.Grants() {
		result.Authorization = access.ResolveVerdictLocks(verdict, roster)
	} else {
		result.Authorization = domain.LockAuthorization{Kind: domain.NoAssignedLocks}
	}

	log.Info("pin evaluated", "verdict", verdict.Kind, "locks", result.Authorization.Kind)
	return result, nil
}

// ShareLocks publishes deviceIDs into a connected call. An empty pin shares
// with owner authority over the whole roster; otherwise the pin's verdict
// bounds what may be shared.
func (s *AccessService) ShareLocks(ctx context.Context, callID, pin string, deviceIDs []string) (*domain.CallRecord, error) {
	const op = "service.access.ShareLocks"
	log := s.log.With("op", op, "call_id", callID)

	call, err := s.channel.Get(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if call.Status != domain.CallStatusConnected {
		return nil, fmt.Errorf("%s: %w", op, ErrCallNotConnected)
	}

	var authorization domain.LockAuthorization
	if pin == "" {
		roster, err := s.locks.ListByProperty(ctx, call.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		authorization = access.ResolveAllowedLocks(nil, roster)
	} else {
		verdict, roster, err := s.evaluate(ctx, call.PropertyID, pin)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		metrics.AccessVerdictsTotal.WithLabelValues(string(verdict.Kind)).Inc()
		if !verdict.Grants() {
			log.Info("pin does not grant lock access", "verdict", verdict.Kind)
			return nil, fmt.Errorf("%s: %w", op, ErrLockNotAuthorized)
		}
		authorization = access.ResolveVerdictLocks(verdict, roster)
	}

	shared := make([]domain.SharedLock, 0, len(deviceIDs))
	seen := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		lock, ok := access.ContainsLock(authorization.Locks, id)
		if !ok {
			log.Warn("lock outside authorized subset", "device_id", id, "authorization", authorization.Kind)
			return nil, fmt.Errorf("%s: %w", op, ErrLockNotAuthorized)
		}
		key := access.NormalizeLockID(lock.DeviceID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		shared = append(shared, lock.Shared())
	}

	updated, err := s.channel.ShareLocks(ctx, callID, shared)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("locks shared", "count", len(shared))
	return updated, nil
}

func (s *AccessService) Unlock(ctx context.Context, callID, deviceID string) error {
	const op = "service.access.Unlock"
	return s.operate(ctx, op, "unlock", callID, deviceID, func(ctx context.Context, device string) error {
		return s.vendor.Unlock(ctx, device)
	})
}

func (s *AccessService) Lock(ctx context.Context, callID, deviceID string) error {
	const op = "service.access.Lock"
	return s.operate(ctx, op, "lock", callID, deviceID, func(ctx context.Context, device string) error {
		return s.vendor.Lock(ctx, device)
	})
}

func (s *AccessService) IssueTemporaryCode(ctx context.Context, callID, deviceID string, window domain.TimeWindow) (domain.TemporaryCode, error) {
	const op = "service.access.IssueTemporaryCode"
	if !window.End.After(window.Start) {
		return domain.TemporaryCode{}, fmt.Errorf("%s: %w", op, ErrInvalidWindow)
	}

	var code domain.TemporaryCode
	err := s.operate(ctx, op, "code", callID, deviceID, func(ctx context.Context, device string) error {
		issued, err := s.vendor.IssueTemporaryCode(ctx, device, window)
		if err != nil {
			return err
		}
		code = issued
		return nil
	})
	return code, err
}

// operate runs fn against the vendor once the device passes both gates: it
// was shared into the call, and it is still in the property's roster.
func (s *AccessService) operate(ctx context.Context, op, kind, callID, deviceID string, fn func(ctx context.Context, device string) error) error {
	log := s.log.With("op", op, "call_id", callID, "device_id", deviceID)

	call, err := s.channel.Get(ctx, callID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if call.Status.IsTerminal() {
		return fmt.Errorf("%s: %w", op, ErrCallClosed)
	}

	if !sharedContains(call.SharedLocks, deviceID) {
		log.Warn("lock was not shared with this call")
		return fmt.Errorf("%s: %w", op, ErrLockNotShared)
	}
	roster, err := s.locks.ListByProperty(ctx, call.PropertyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	lock, ok := access.ContainsLock(roster, deviceID)
	if !ok {
		log.Warn("shared lock is no longer in the roster")
		return fmt.Errorf("%s: %w", op, ErrLockNotShared)
	}

	operation := func() error {
		err := fn(ctx, lock.DeviceID)
		if errors.Is(err, lockvendor.ErrDeviceNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Debug("retrying lock vendor call", sl.Err(err), "wait", wait)
	}
	err = backoff.RetryNotify(operation, backoff.WithContext(s.backOff(), ctx), notify)
	metrics.LockOperationsTotal.WithLabelValues(kind, metrics.Result(err)).Inc()
	if err != nil {
		log.Error("lock operation failed", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("lock operation done", "kind", kind)
	return nil
}

func (s *AccessService) evaluate(ctx context.Context, propertyID, pin string) (domain.AccessVerdict, []*domain.SmartLock, error) {
	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return domain.AccessVerdict{}, nil, err
	}
	guests, err := s.guests.ListByProperty(ctx, propertyID)
	if err != nil {
		return domain.AccessVerdict{}, nil, err
	}
	roster, err := s.locks.ListByProperty(ctx, propertyID)
	if err != nil {
		return domain.AccessVerdict{}, nil, err
	}

	var masterPIN *string
	if property.MasterPIN != "" {
		masterPIN = &property.MasterPIN
	}
	return access.ResolveGuestAccess(pin, guests, masterPIN, s.now()), roster, nil
}

func sharedContains(shared []domain.SharedLock, deviceID string) bool {
	key := access.NormalizeLockID(deviceID)
	for _, l := range shared {
		if access.NormalizeLockID(l.DeviceID) == key {
			return true
		}
	}
	return false
}
