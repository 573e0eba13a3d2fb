package domain

import (
	"time"

	"github.com/google/uuid"
)

// Guest is a visitor the owner has issued a PIN to. StartTime and EndTime are
// kept as the ISO instants they were entered with; parsing happens at
// resolution time.
type Guest struct {
	ID           string    `json:"id"`
	PropertyID   string    `json:"property_id"`
	Name         string    `json:"name"`
	AccessPIN    string    `json:"access_pin"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	AllowedLocks []string  `json:"allowed_locks"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewGuest(propertyID, name, pin string, start, end time.Time, allowedLocks []string) *Guest {
	now := time.Now().UTC()
	return &Guest{
		ID:           uuid.New().String(),
		PropertyID:   propertyID,
		Name:         name,
		AccessPIN:    pin,
		StartTime:    start.UTC().Format(time.RFC3339),
		EndTime:      end.UTC().Format(time.RFC3339),
		AllowedLocks: append([]string(nil), allowedLocks...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Property groups the guests and locks behind one doorbell.
type Property struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	MasterPIN string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
