package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store repository.CallRepository, status domain.CallStatus, age time.Duration) string {
	t.Helper()
	call := domain.NewCallRecord("prop-1", &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	call.Status = status
	call.CreatedAt = time.Now().Add(-age)
	require.NoError(t, store.Create(context.Background(), call))
	return call.ID
}

func TestSweeper_Sweep(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewInMemoryCallRepository()
	channel := signaling.NewChannel(store, log)
	sweeper := NewSweeper(store, channel, time.Second, time.Minute, time.Hour, log)
	ctx := context.Background()

	staleRing := seed(t, store, domain.CallStatusCalling, 2*time.Minute)
	stalePending := seed(t, store, domain.CallStatusPending, 3*time.Minute)
	freshRing := seed(t, store, domain.CallStatusCalling, 10*time.Second)
	longCall := seed(t, store, domain.CallStatusConnected, 2*time.Hour)
	liveCall := seed(t, store, domain.CallStatusConnected, 10*time.Minute)

	closed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, closed)

	expect := map[string]domain.CallStatus{
		staleRing:    domain.CallStatusTimeout,
		stalePending: domain.CallStatusTimeout,
		freshRing:    domain.CallStatusCalling,
		longCall:     domain.CallStatusEnded,
		liveCall:     domain.CallStatusConnected,
	}
	for id, status := range expect {
		call, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, call.Status, id)
	}

	closed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewInMemoryCallRepository()
	sweeper := NewSweeper(store, signaling.NewChannel(store, log), 5*time.Millisecond, time.Millisecond, 0, log)

	id := seed(t, store, domain.CallStatusCalling, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		call, err := store.Get(context.Background(), id)
		return err == nil && call.Status == domain.CallStatusTimeout
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
