// Package worker runs background maintenance over the call store.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/metrics"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
)

// Sweeper closes calls whose clients went away without writing a terminal
// status. Rings older than maxRinging become timeout; connected calls older
// than maxConnected become ended.
type Sweeper struct {
	store        repository.CallRepository
	channel      *signaling.Channel
	interval     time.Duration
	maxRinging   time.Duration
	maxConnected time.Duration
	now          func() time.Time
	log          *slog.Logger
}

func NewSweeper(
	store repository.CallRepository,
	channel *signaling.Channel,
	interval, maxRinging, maxConnected time.Duration,
	log *slog.Logger,
) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		store:        store,
		channel:      channel,
		interval:     interval,
		maxRinging:   maxRinging,
		maxConnected: maxConnected,
		now:          time.Now,
		log:          log,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	const op = "worker.sweeper.Run"
	log := s.log.With("op", op)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info("sweeper started", "interval", s.interval, "max_ringing", s.maxRinging)
	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				log.Error("sweep failed", sl.Err(err))
			} else if n > 0 {
				log.Info("stale calls closed", "count", n)
			}
		}
	}
}

// Sweep closes every stale open call once and reports how many it closed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	const op = "worker.sweeper.Sweep"
	log := s.log.With("op", op)

	calls, err := s.store.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	closed := 0
	for _, call := range calls {
		status, stale := s.verdict(call, now)
		if !stale {
			continue
		}
		_, err := s.channel.SetStatus(ctx, call.ID, status)
		switch {
		case err == nil:
			closed++
			metrics.SweptCallsTotal.Inc()
			metrics.CallsTotal.WithLabelValues(string(status)).Inc()
			log.Debug("call closed", "call_id", call.ID, "status", status)
		case errors.Is(err, signaling.ErrCallTerminal), errors.Is(err, signaling.ErrCallNotFound):
			// a client closed it between the list and the write
		case ctx.Err() != nil:
			return closed, ctx.Err()
		default:
			log.Warn("failed to close stale call", "call_id", call.ID, sl.Err(err))
		}
	}
	return closed, nil
}

func (s *Sweeper) verdict(call *domain.CallRecord, now time.Time) (domain.CallStatus, bool) {
	age := now.Sub(call.CreatedAt)
	switch call.Status {
	case domain.CallStatusPending, domain.CallStatusCalling:
		return domain.CallStatusTimeout, age > s.maxRinging
	case domain.CallStatusConnected:
		return domain.CallStatusEnded, s.maxConnected > 0 && age > s.maxConnected
	}
	return "", false
}
