package converter

import (
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/pion/webrtc/v3"
)

type CallResponse struct {
	ID            string                     `json:"id"`
	PropertyID    string                     `json:"propertyId"`
	Status        domain.CallStatus          `json:"status"`
	Terminal      bool                       `json:"terminal"`
	CallOffer     *webrtc.SessionDescription `json:"callOffer,omitempty"`
	CallAnswer    *webrtc.SessionDescription `json:"callAnswer,omitempty"`
	IceCandidates []domain.IceCandidateEntry `json:"iceCandidates"`
	SharedLocks   []domain.SharedLock        `json:"sharedLocks,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
}

func CallToApi(c *domain.CallRecord) *CallResponse {
	candidates := c.IceCandidates
	if candidates == nil {
		candidates = []domain.IceCandidateEntry{}
	}
	return &CallResponse{
		ID:            c.ID,
		PropertyID:    c.PropertyID,
		Status:        c.Status,
		Terminal:      c.Status.IsTerminal(),
		CallOffer:     c.Offer,
		CallAnswer:    c.Answer,
		IceCandidates: candidates,
		SharedLocks:   c.SharedLocks,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type LockResponse struct {
	DeviceID     string `json:"device_id"`
	DisplayName  string `json:"display_name"`
	Manufacturer string `json:"manufacturer"`
}

// LocksToApi drops vendor account ids before locks reach a visitor.
func LocksToApi(locks []*domain.SmartLock) []LockResponse {
	out := make([]LockResponse, 0, len(locks))
	for _, l := range locks {
		out = append(out, LockResponse{
			DeviceID:     l.DeviceID,
			DisplayName:  l.DisplayName,
			Manufacturer: l.Manufacturer,
		})
	}
	return out
}

type GuestResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	AllowedLocks []string `json:"allowed_locks"`
}

// GuestToApi is the visitor-facing view of a guest; the PIN never leaves.
func GuestToApi(g *domain.Guest) *GuestResponse {
	if g == nil {
		return nil
	}
	allowed := g.AllowedLocks
	if allowed == nil {
		allowed = []string{}
	}
	return &GuestResponse{
		ID:           g.ID,
		Name:         g.Name,
		StartTime:    g.StartTime,
		EndTime:      g.EndTime,
		AllowedLocks: allowed,
	}
}
