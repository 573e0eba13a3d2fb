package model

import (
	"time"
)

type Property struct {
	ID        string    `gorm:"size:64;primaryKey"`
	OwnerID   string    `gorm:"size:64;index;not null"`
	Name      string    `gorm:"size:255;not null"`
	MasterPIN string    `gorm:"size:16"`
	CreatedAt time.Time `gorm:"not null"`
	Guests    []Guest   `gorm:"constraint:OnDelete:CASCADE"`
	Locks     []Lock    `gorm:"constraint:OnDelete:CASCADE"`
}

type Guest struct {
	ID           string   `gorm:"size:64;primaryKey"`
	PropertyID   string   `gorm:"size:64;index;not null"`
	Name         string   `gorm:"size:255;not null"`
	AccessPIN    string   `gorm:"size:16;not null"`
	StartTime    string   `gorm:"size:64"`
	EndTime      string   `gorm:"size:64"`
	AllowedLocks []string `gorm:"serializer:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Lock is one row of the vendor device catalog mirrored per property.
type Lock struct {
	PropertyID         string `gorm:"size:64;primaryKey"`
	DeviceID           string `gorm:"size:128;primaryKey"`
	DisplayName        string `gorm:"size:255"`
	Manufacturer       string `gorm:"size:128"`
	ConnectedAccountID string `gorm:"size:128"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
