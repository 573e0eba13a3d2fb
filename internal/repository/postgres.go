package repository

import (
	"context"
	"errors"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/repository/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresGuestRepository struct {
	db *gorm.DB
}

func NewPostgresGuestRepository(db *gorm.DB) *PostgresGuestRepository {
	return &PostgresGuestRepository{db: db}
}

func (r *PostgresGuestRepository) Create(ctx context.Context, guest *domain.Guest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if guest == nil {
		return errors.New("guest is nil")
	}
	if guest.ID == "" {
		guest.ID = uuid.New().String()
	}

	return r.db.WithContext(ctx).Create(toModelGuest(guest)).Error
}

func (r *PostgresGuestRepository) GetByID(ctx context.Context, id string) (*domain.Guest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var guest model.Guest
	err := r.db.WithContext(ctx).First(&guest, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGuestNotFound
		}
		return nil, err
	}

	return toDomainGuest(&guest), nil
}

func (r *PostgresGuestRepository) Update(ctx context.Context, guest *domain.Guest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if guest == nil {
		return errors.New("guest is nil")
	}

	m := toModelGuest(guest)
	m.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.Guest{}).
		Where("id = ?", m.ID).
		Select("name", "access_pin", "start_time", "end_time", "allowed_locks", "updated_at").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGuestNotFound
	}
	return nil
}

func (r *PostgresGuestRepository) ListByProperty(ctx context.Context, propertyID string) ([]*domain.Guest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var guests []model.Guest
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at asc").
		Find(&guests).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Guest, 0, len(guests))
	for i := range guests {
		result = append(result, toDomainGuest(&guests[i]))
	}
	return result, nil
}

type PostgresPropertyRepository struct {
	db *gorm.DB
}

func NewPostgresPropertyRepository(db *gorm.DB) *PostgresPropertyRepository {
	return &PostgresPropertyRepository{db: db}
}

func (r *PostgresPropertyRepository) Create(ctx context.Context, property *domain.Property) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if property == nil {
		return errors.New("property is nil")
	}
	if property.ID == "" {
		property.ID = uuid.New().String()
	}

	return r.db.WithContext(ctx).Create(&model.Property{
		ID:        property.ID,
		OwnerID:   property.OwnerID,
		Name:      property.Name,
		MasterPIN: property.MasterPIN,
		CreatedAt: property.CreatedAt,
	}).Error
}

func (r *PostgresPropertyRepository) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var property model.Property
	err := r.db.WithContext(ctx).First(&property, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}

	return &domain.Property{
		ID:        property.ID,
		OwnerID:   property.OwnerID,
		Name:      property.Name,
		MasterPIN: property.MasterPIN,
		CreatedAt: property.CreatedAt,
	}, nil
}

type PostgresLockRepository struct {
	db *gorm.DB
}

func NewPostgresLockRepository(db *gorm.DB) *PostgresLockRepository {
	return &PostgresLockRepository{db: db}
}

func (r *PostgresLockRepository) Upsert(ctx context.Context, propertyID string, lock *domain.SmartLock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lock == nil {
		return errors.New("lock is nil")
	}

	m := model.Lock{
		PropertyID:         propertyID,
		DeviceID:           lock.DeviceID,
		DisplayName:        lock.DisplayName,
		Manufacturer:       lock.Manufacturer,
		ConnectedAccountID: lock.ConnectedAccountID,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "property_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "manufacturer", "connected_account_id", "updated_at"}),
	}).Create(&m).Error
}

func (r *PostgresLockRepository) Delete(ctx context.Context, propertyID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Where("property_id = ? AND device_id = ?", propertyID, deviceID).
		Delete(&model.Lock{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLockNotFound
	}
	return nil
}

func (r *PostgresLockRepository) ListByProperty(ctx context.Context, propertyID string) ([]*domain.SmartLock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var locks []model.Lock
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at asc").
		Find(&locks).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.SmartLock, 0, len(locks))
	for _, l := range locks {
		result = append(result, &domain.SmartLock{
			DeviceID:           l.DeviceID,
			DisplayName:        l.DisplayName,
			Manufacturer:       l.Manufacturer,
			ConnectedAccountID: l.ConnectedAccountID,
		})
	}
	return result, nil
}

func toModelGuest(guest *domain.Guest) *model.Guest {
	return &model.Guest{
		ID:           guest.ID,
		PropertyID:   guest.PropertyID,
		Name:         guest.Name,
		AccessPIN:    guest.AccessPIN,
		StartTime:    guest.StartTime,
		EndTime:      guest.EndTime,
		AllowedLocks: append([]string(nil), guest.AllowedLocks...),
		CreatedAt:    guest.CreatedAt,
		UpdatedAt:    guest.UpdatedAt,
	}
}

func toDomainGuest(guest *model.Guest) *domain.Guest {
	return &domain.Guest{
		ID:           guest.ID,
		PropertyID:   guest.PropertyID,
		Name:         guest.Name,
		AccessPIN:    guest.AccessPIN,
		StartTime:    guest.StartTime,
		EndTime:      guest.EndTime,
		AllowedLocks: append([]string(nil), guest.AllowedLocks...),
		CreatedAt:    guest.CreatedAt,
		UpdatedAt:    guest.UpdatedAt,
	}
}
