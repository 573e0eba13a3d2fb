package domain

import "time"

type SmartLock struct {
	DeviceID           string `json:"device_id"`
	DisplayName        string `json:"display_name"`
	Manufacturer       string `json:"manufacturer"`
	ConnectedAccountID string `json:"connected_account_id"`
}

// SharedLock is the subset of lock fields published into a call record.
type SharedLock struct {
	DeviceID     string `json:"device_id"`
	DisplayName  string `json:"display_name"`
	Manufacturer string `json:"manufacturer"`
}

func (l *SmartLock) Shared() SharedLock {
	return SharedLock{
		DeviceID:     l.DeviceID,
		DisplayName:  l.DisplayName,
		Manufacturer: l.Manufacturer,
	}
}

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type TemporaryCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
