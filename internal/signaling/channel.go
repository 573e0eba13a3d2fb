package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

var (
	ErrCallNotFound     = repository.ErrCallNotFound
	ErrCallTerminal     = repository.ErrCallTerminal
	ErrOfferAlreadySet  = repository.ErrOfferAlreadySet
	ErrAnswerAlreadySet = repository.ErrAnswerAlreadySet
	ErrMissingOffer     = errors.New("call offer is required")
	ErrMissingAnswer    = errors.New("call answer is required")
	ErrInvalidStatus    = errors.New("invalid call status")
	ErrInvalidRole      = errors.New("invalid candidate origin")
)

// Channel is the signaling surface both parties of a call talk through.
// Writes are merges on the shared document; readers always get the whole
// document and must deduplicate on their own.
type Channel struct {
	store   repository.CallRepository
	log     *slog.Logger
	backOff func() backoff.BackOff
}

type Option func(*Channel)

// WithBackOff replaces the retry policy used for idempotent writes.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Channel) {
		c.backOff = newBackOff
	}
}

func NewChannel(store repository.CallRepository, log *slog.Logger, opts ...Option) *Channel {
	if log == nil {
		log = slog.Default()
	}
	c := &Channel{
		store:   store,
		log:     log,
		backOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 5 * time.Second
	return b
}

// CreateCall writes a new record in calling state and returns its id.
// Creation is not retried: a blind retry could leave two records for one ring.
func (c *Channel) CreateCall(ctx context.Context, propertyID string, offer *webrtc.SessionDescription) (string, error) {
	const op = "signaling.channel.CreateCall"
	log := c.log.With("op", op, "property_id", propertyID)

	if offer == nil || offer.SDP == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingOffer)
	}

	call := domain.NewCallRecord(propertyID, domain.CopyDescription(offer))
	if err := c.store.Create(ctx, call); err != nil {
		log.Error("failed to create call", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("call created", "call_id", call.ID)
	return call.ID, nil
}

func (c *Channel) Get(ctx context.Context, callID string) (*domain.CallRecord, error) {
	const op = "signaling.channel.Get"

	call, err := c.store.Get(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return call, nil
}

// WriteAnswer stores the owner's answer. Writing the same answer twice is
// harmless; a different one is rejected with ErrAnswerAlreadySet.
func (c *Channel) WriteAnswer(ctx context.Context, callID string, answer *webrtc.SessionDescription) error {
	const op = "signaling.channel.WriteAnswer"

	if answer == nil || answer.SDP == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingAnswer)
	}

	_, err := c.update(ctx, op, callID, domain.CallPatch{Answer: domain.CopyDescription(answer)})
	return err
}

// AppendIceCandidate adds one candidate to the record. A retried append may
// land twice; readers deduplicate by content.
func (c *Channel) AppendIceCandidate(ctx context.Context, callID string, from domain.Role, candidate webrtc.ICECandidateInit) error {
	const op = "signaling.channel.AppendIceCandidate"
	log := c.log.With("op", op, "call_id", callID, "from", from)

	if !from.IsValid() {
		return fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}

	entry := domain.IceCandidateEntry{From: from, Candidate: candidate}
	err := c.retry(ctx, log, func() error {
		return c.store.AppendCandidate(ctx, callID, entry)
	})
	if err != nil {
		log.Warn("failed to append candidate", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Channel) SetStatus(ctx context.Context, callID string, status domain.CallStatus) (*domain.CallRecord, error) {
	const op = "signaling.channel.SetStatus"

	if !status.IsValid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}
	return c.update(ctx, op, callID, domain.CallPatch{Status: &status})
}

// ShareLocks publishes the lock subset the guest may operate. An empty slice
// revokes every previously shared lock.
func (c *Channel) ShareLocks(ctx context.Context, callID string, locks []domain.SharedLock) (*domain.CallRecord, error) {
	const op = "signaling.channel.ShareLocks"

	if locks == nil {
		locks = []domain.SharedLock{}
	}
	return c.update(ctx, op, callID, domain.CallPatch{SharedLocks: locks})
}

// Subscribe calls onChange with the full record after every change, starting
// with the current one. Deliveries stop once the returned cancel is called or
// ctx is done. onChange runs on a single goroutine.
func (c *Channel) Subscribe(ctx context.Context, callID string, onChange func(*domain.CallRecord)) (func(), error) {
	const op = "signaling.channel.Subscribe"

	updates, cancelStore, err := c.store.Subscribe(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var stopped atomic.Bool
	go func() {
		for call := range updates {
			if stopped.Load() {
				continue
			}
			onChange(call)
		}
	}()

	return func() {
		stopped.Store(true)
		cancelStore()
	}, nil
}

func (c *Channel) update(ctx context.Context, op, callID string, patch domain.CallPatch) (*domain.CallRecord, error) {
	log := c.log.With("op", op, "call_id", callID)

	var call *domain.CallRecord
	err := c.retry(ctx, log, func() error {
		updated, err := c.store.Update(ctx, callID, patch)
		if err != nil {
			return err
		}
		call = updated
		return nil
	})
	if err != nil {
		log.Warn("failed to update call", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return call, nil
}

func (c *Channel) retry(ctx context.Context, log *slog.Logger, fn func() error) error {
	operation := func() error {
		err := fn()
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Debug("retrying signaling write", sl.Err(err), "wait", wait)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(c.backOff(), ctx), notify)
}

func isPermanent(err error) bool {
	return errors.Is(err, repository.ErrCallNotFound) ||
		errors.Is(err, repository.ErrCallTerminal) ||
		errors.Is(err, repository.ErrOfferAlreadySet) ||
		errors.Is(err, repository.ErrAnswerAlreadySet) ||
		errors.Is(err, repository.ErrPropertyIDMissing) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
