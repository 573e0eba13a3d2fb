package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/repository/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Property{}, &model.Guest{}, &model.Lock{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestPostgresPropertyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresPropertyRepository(setupDB(t))

	property := &domain.Property{OwnerID: "owner-1", Name: "Lake house", MasterPIN: "4321", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, property))
	require.NotEmpty(t, property.ID)

	got, err := repo.GetByID(ctx, property.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lake house", got.Name)
	assert.Equal(t, "4321", got.MasterPIN)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestPostgresGuestRepository(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	repo := NewPostgresGuestRepository(db)

	now := time.Now()
	first := domain.NewGuest("prop-1", "Ann", "1111", now, now.Add(time.Hour), []string{"lock-a", "lock-b"})
	second := domain.NewGuest("prop-1", "Bob", "2222", now, now.Add(time.Hour), nil)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := domain.NewGuest("prop-2", "Cid", "3333", now, now.Add(time.Hour), nil)
	for _, g := range []*domain.Guest{first, second, other} {
		require.NoError(t, repo.Create(ctx, g))
	}

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock-a", "lock-b"}, got.AllowedLocks)
	assert.Equal(t, first.StartTime, got.StartTime)

	list, err := repo.ListByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	got.AllowedLocks = []string{"lock-c"}
	got.AccessPIN = "9999"
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock-c"}, updated.AllowedLocks)
	assert.Equal(t, "9999", updated.AccessPIN)

	err = repo.Update(ctx, &domain.Guest{ID: "missing"})
	assert.ErrorIs(t, err, ErrGuestNotFound)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrGuestNotFound)
}

func TestPostgresLockRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresLockRepository(setupDB(t))

	lock := &domain.SmartLock{DeviceID: "dev-1", DisplayName: "Front", Manufacturer: "august", ConnectedAccountID: "acct"}
	require.NoError(t, repo.Upsert(ctx, "prop-1", lock))

	lock.DisplayName = "Front door"
	require.NoError(t, repo.Upsert(ctx, "prop-1", lock))
	require.NoError(t, repo.Upsert(ctx, "prop-2", &domain.SmartLock{DeviceID: "dev-2"}))

	locks, err := repo.ListByProperty(ctx, "prop-1")
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "Front door", locks[0].DisplayName)

	require.NoError(t, repo.Delete(ctx, "prop-1", "dev-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "prop-1", "dev-1"), ErrLockNotFound)

	locks, err = repo.ListByProperty(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, locks)
}
