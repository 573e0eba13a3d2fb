// Package notify tells property owners that a visitor is ringing.
package notify

import (
	"context"
	"errors"
	"time"
)

var ErrPublishTimeout = errors.New("ring notification timed out")

// Ring announces a new call. OwnerToken lets the owner's client answer the
// call without a separate token round trip.
type Ring struct {
	CallID     string    `json:"call_id"`
	PropertyID string    `json:"property_id"`
	OwnerToken string    `json:"owner_token,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Publisher interface {
	PublishRing(ctx context.Context, ring Ring) error
}

// Subscriber delivers rings for one property, or for every property when
// propertyID is empty.
type Subscriber interface {
	SubscribeRings(propertyID string) (<-chan Ring, func(), error)
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) PublishRing(ctx context.Context, ring Ring) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishRing(ctx, ring); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
