package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/lockvendor"
	"github.com/developer387/doorbell-app-sub000/internal/lockvendor/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func (f *fixture) accessService(t *testing.T, vendor lockvendor.Controller) *AccessService {
	t.Helper()
	return NewAccessService(f.properties, f.guests, f.locks, f.channel, vendor, f.log,
		WithClock(func() time.Time { return now }),
		WithVendorBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
		}),
	)
}

func (f *fixture) seedRoster(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, l := range []*domain.SmartLock{
		{DeviceID: "front", DisplayName: "Front door", Manufacturer: "august"},
		{DeviceID: "garage", DisplayName: "Garage", Manufacturer: "yale"},
	} {
		require.NoError(t, f.locks.Upsert(ctx, f.property.ID, l))
	}
	guest := domain.NewGuest(f.property.ID, "Ann", "1234", now.Add(-time.Hour), now.Add(time.Hour), []string{" FRONT"})
	require.NoError(t, f.guests.Create(ctx, guest))
	late := domain.NewGuest(f.property.ID, "Bob", "4321", now.Add(2*time.Hour), now.Add(3*time.Hour), []string{"front"})
	require.NoError(t, f.guests.Create(ctx, late))
}

func (f *fixture) connectedCall(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.channel.CreateCall(ctx, f.property.ID, offer())
	require.NoError(t, err)
	_, err = f.channel.SetStatus(ctx, id, domain.CallStatusConnected)
	require.NoError(t, err)
	return id
}

func TestAccessService_SubmitPIN(t *testing.T) {
	f := setupFixture(t)
	f.seedRoster(t)
	svc := f.accessService(t, mocks.NewMockController(gomock.NewController(t)))
	ctx := context.Background()

	tests := []struct {
		name     string
		pin      string
		verdict  domain.VerdictKind
		locks    domain.LockAuthorizationKind
		expected []string
	}{
		{name: "guest", pin: "1234", verdict: domain.VerdictValid, locks: domain.LocksLoaded, expected: []string{"front"}},
		{name: "master", pin: "9999", verdict: domain.VerdictMasterAccess, locks: domain.LocksLoaded, expected: []string{"front", "garage"}},
		{name: "not yet active", pin: "4321", verdict: domain.VerdictNotYetActive, locks: domain.NoAssignedLocks},
		{name: "unknown", pin: "0000", verdict: domain.VerdictInvalidPIN, locks: domain.NoAssignedLocks},
		{name: "padded", pin: " 1234", verdict: domain.VerdictInvalidPIN, locks: domain.NoAssignedLocks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.SubmitPIN(ctx, f.property.ID, tt.pin)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, res.Verdict.Kind)
			assert.Equal(t, res.Verdict.Message(), res.Message)
			assert.Equal(t, tt.locks, res.Authorization.Kind)

			ids := make([]string, 0, len(res.Authorization.Locks))
			for _, l := range res.Authorization.Locks {
				ids = append(ids, l.DeviceID)
			}
			assert.ElementsMatch(t, tt.expected, ids)
		})
	}

	_, err := svc.SubmitPIN(ctx, "missing", "1234")
	assert.Error(t, err)
}

func TestAccessService_ShareLocks(t *testing.T) {
	f := setupFixture(t)
	f.seedRoster(t)
	svc := f.accessService(t, mocks.NewMockController(gomock.NewController(t)))
	ctx := context.Background()

	t.Run("requires connected call", func(t *testing.T) {
		id, err := f.channel.CreateCall(ctx, f.property.ID, offer())
		require.NoError(t, err)
		_, err = svc.ShareLocks(ctx, id, "", []string{"front"})
		assert.ErrorIs(t, err, ErrCallNotConnected)
	})

	t.Run("guest pin bounds the subset", func(t *testing.T) {
		id := f.connectedCall(t)
		_, err := svc.ShareLocks(ctx, id, "1234", []string{"garage"})
		assert.ErrorIs(t, err, ErrLockNotAuthorized)

		call, err := svc.ShareLocks(ctx, id, "1234", []string{"Front ", "front"})
		require.NoError(t, err)
		require.Len(t, call.SharedLocks, 1)
		assert.Equal(t, "front", call.SharedLocks[0].DeviceID)
		assert.Equal(t, "Front door", call.SharedLocks[0].DisplayName)
	})

	t.Run("non granting pin", func(t *testing.T) {
		id := f.connectedCall(t)
		_, err := svc.ShareLocks(ctx, id, "4321", []string{"front"})
		assert.ErrorIs(t, err, ErrLockNotAuthorized)
	})

	t.Run("owner shares anything in the roster", func(t *testing.T) {
		id := f.connectedCall(t)
		call, err := svc.ShareLocks(ctx, id, "", []string{"front", "garage"})
		require.NoError(t, err)
		assert.Len(t, call.SharedLocks, 2)

		_, err = svc.ShareLocks(ctx, id, "", []string{"basement"})
		assert.ErrorIs(t, err, ErrLockNotAuthorized)
	})
}

func TestAccessService_Unlock(t *testing.T) {
	f := setupFixture(t)
	f.seedRoster(t)
	ctrl := gomock.NewController(t)
	vendor := mocks.NewMockController(ctrl)
	svc := f.accessService(t, vendor)
	ctx := context.Background()

	id := f.connectedCall(t)
	_, err := svc.ShareLocks(ctx, id, "1234", []string{"front"})
	require.NoError(t, err)

	t.Run("retries transient failures", func(t *testing.T) {
		gomock.InOrder(
			vendor.EXPECT().Unlock(gomock.Any(), "front").Return(lockvendor.ErrTimeout),
			vendor.EXPECT().Unlock(gomock.Any(), "front").Return(nil),
		)
		require.NoError(t, svc.Unlock(ctx, id, " FRONT"))
	})

	t.Run("not found is final", func(t *testing.T) {
		vendor.EXPECT().Lock(gomock.Any(), "front").Return(lockvendor.ErrDeviceNotFound).Times(1)
		err := svc.Lock(ctx, id, "front")
		assert.ErrorIs(t, err, lockvendor.ErrDeviceNotFound)
	})

	t.Run("unshared lock never reaches the vendor", func(t *testing.T) {
		err := svc.Unlock(ctx, id, "garage")
		assert.ErrorIs(t, err, ErrLockNotShared)
	})

	t.Run("roster removal revokes a shared lock", func(t *testing.T) {
		require.NoError(t, f.locks.Delete(ctx, f.property.ID, "front"))
		defer func() {
			require.NoError(t, f.locks.Upsert(ctx, f.property.ID, &domain.SmartLock{DeviceID: "front", DisplayName: "Front door"}))
		}()
		err := svc.Unlock(ctx, id, "front")
		assert.ErrorIs(t, err, ErrLockNotShared)
	})

	t.Run("temporary code", func(t *testing.T) {
		window := domain.TimeWindow{Start: now, End: now.Add(time.Hour)}
		vendor.EXPECT().IssueTemporaryCode(gomock.Any(), "front", window).
			Return(domain.TemporaryCode{Code: "482913", ExpiresAt: window.End}, nil)
		code, err := svc.IssueTemporaryCode(ctx, id, "front", window)
		require.NoError(t, err)
		assert.Equal(t, "482913", code.Code)

		_, err = svc.IssueTemporaryCode(ctx, id, "front", domain.TimeWindow{Start: now, End: now})
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})

	t.Run("gives up after retries", func(t *testing.T) {
		boom := errors.New("vendor down")
		vendor.EXPECT().Unlock(gomock.Any(), "front").Return(boom).Times(4)
		err := svc.Unlock(ctx, id, "front")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("finished call", func(t *testing.T) {
		_, err := f.channel.SetStatus(ctx, id, domain.CallStatusEnded)
		require.NoError(t, err)
		err = svc.Unlock(ctx, id, "front")
		assert.ErrorIs(t, err, ErrCallClosed)
	})
}
