package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/metrics"
	"github.com/developer387/doorbell-app-sub000/internal/notify"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

var (
	ErrRoleNotAllowed     = errors.New("role may not perform this action")
	ErrStatusNotAllowed   = errors.New("role may not set this status")
	ErrUnsupportedSignal  = errors.New("unsupported signal type")
	ErrMessageRequired    = errors.New("message is required")
	ErrCandidateRequired  = errors.New("candidate is required")
	ErrPropertyIDRequired = errors.New("property id is required")
)

// statuses each side may write. pending and calling belong to creation.
var allowedStatuses = map[domain.Role]map[domain.CallStatus]struct{}{
	domain.RoleOwner: {
		domain.CallStatusConnected: {},
		domain.CallStatusDeclined:  {},
		domain.CallStatusEnded:     {},
		domain.CallStatusFailed:    {},
	},
	domain.RoleGuest: {
		domain.CallStatusConnected: {},
		domain.CallStatusEnded:     {},
		domain.CallStatusMissed:    {},
		domain.CallStatusTimeout:   {},
		domain.CallStatusFailed:    {},
	},
}

// CreatedCall is returned to the visitor that rang.
type CreatedCall struct {
	Call  *domain.CallRecord
	Token string
}

type CallService struct {
	channel    *signaling.Channel
	properties repository.PropertyRepository
	rings      notify.Publisher
	tokens     *TokenService
	log        *slog.Logger
}

func NewCallService(
	channel *signaling.Channel,
	properties repository.PropertyRepository,
	rings notify.Publisher,
	tokens *TokenService,
	log *slog.Logger,
) *CallService {
	if log == nil {
		log = slog.Default()
	}
	return &CallService{
		channel:    channel,
		properties: properties,
		rings:      rings,
		tokens:     tokens,
		log:        log,
	}
}

// CreateCall opens a new call record for a visitor at propertyID and rings
// the owner. A failed ring is logged only: the record exists and the
// visitor's own timeout still closes it.
func (s *CallService) CreateCall(ctx context.Context, propertyID string, offer *webrtc.SessionDescription) (*CreatedCall, error) {
	const op = "service.call.CreateCall"
	log := s.log.With("op", op, "property_id", propertyID)

	if propertyID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrPropertyIDRequired)
	}
	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if offer != nil && offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("%s: %w", op, signaling.ErrMissingOffer)
	}

	callID, err := s.channel.CreateCall(ctx, propertyID, offer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.CallsTotal.WithLabelValues(string(domain.CallStatusCalling)).Inc()
	log = log.With("call_id", callID)

	guestToken, err := s.tokens.Issue(callID, propertyID, domain.RoleGuest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ring := notify.Ring{CallID: callID, PropertyID: propertyID, CreatedAt: time.Now().UTC()}
	if ownerToken, err := s.tokens.Issue(callID, propertyID, domain.RoleOwner); err != nil {
		log.Error("failed to issue owner token", sl.Err(err))
	} else {
		ring.OwnerToken = ownerToken
	}
	if err := s.rings.PublishRing(ctx, ring); err != nil {
		log.Warn("failed to ring owner", sl.Err(err))
	}

	call, err := s.channel.Get(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("visitor is ringing")
	return &CreatedCall{Call: call, Token: guestToken}, nil
}

func (s *CallService) GetCall(ctx context.Context, callID string) (*domain.CallRecord, error) {
	return s.channel.Get(ctx, callID)
}

func (s *CallService) WriteAnswer(ctx context.Context, callID string, role domain.Role, answer *webrtc.SessionDescription) error {
	const op = "service.call.WriteAnswer"
	if role != domain.RoleOwner {
		return fmt.Errorf("%s: %w", op, ErrRoleNotAllowed)
	}
	if answer != nil && answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%s: %w", op, signaling.ErrMissingAnswer)
	}
	if err := s.channel.WriteAnswer(ctx, callID, answer); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *CallService) AddCandidate(ctx context.Context, callID string, from domain.Role, candidate webrtc.ICECandidateInit) error {
	const op = "service.call.AddCandidate"
	if candidate.Candidate == "" {
		return fmt.Errorf("%s: %w", op, ErrCandidateRequired)
	}
	if err := s.channel.AppendIceCandidate(ctx, callID, from, candidate); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *CallService) SetStatus(ctx context.Context, callID string, role domain.Role, status domain.CallStatus) (*domain.CallRecord, error) {
	const op = "service.call.SetStatus"
	log := s.log.With("op", op, "call_id", callID, "role", role, "status", status)

	if _, ok := allowedStatuses[role][status]; !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrStatusNotAllowed)
	}
	call, err := s.channel.SetStatus(ctx, callID, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.CallsTotal.WithLabelValues(string(status)).Inc()
	log.Info("call status updated")
	return call, nil
}

func (s *CallService) Watch(ctx context.Context, callID string, onChange func(*domain.CallRecord)) (func(), error) {
	return s.channel.Subscribe(ctx, callID, onChange)
}

// HandleSignal applies one message read from a call websocket on behalf of
// role. Snapshots flow the other way through Watch, so successful writes
// return no reply.
func (s *CallService) HandleSignal(ctx context.Context, callID string, role domain.Role, message *domain.SignalMessage) (*domain.SignalMessage, error) {
	const op = "service.call.HandleSignal"
	if message == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMessageRequired)
	}
	log := s.log.With("op", op, "call_id", callID, "role", role)
	log.Debug("new signal", "type", message.Type)

	switch message.Type {
	case domain.SignalTypeAnswer:
		return nil, s.WriteAnswer(ctx, callID, role, message.SDP)
	case domain.SignalTypeIceCandidate:
		if message.Candidate == nil {
			return nil, fmt.Errorf("%s: %w", op, ErrCandidateRequired)
		}
		return nil, s.AddCandidate(ctx, callID, role, *message.Candidate)
	case domain.SignalTypeStatus:
		_, err := s.SetStatus(ctx, callID, role, message.Status)
		return nil, err
	case domain.SignalTypeLeave:
		log.Info("participant is leaving")
		_, err := s.SetStatus(ctx, callID, role, domain.CallStatusEnded)
		if errors.Is(err, signaling.ErrCallTerminal) {
			return nil, nil
		}
		return nil, err
	case domain.SignalTypeSnapshot:
		call, err := s.GetCall(ctx, callID)
		if err != nil {
			return nil, err
		}
		return &domain.SignalMessage{Type: domain.SignalTypeSnapshot, Call: call}, nil
	default:
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedSignal, message.Type)
	}
}
