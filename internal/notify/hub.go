package notify

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Hub fans rings out to in-process subscribers. A subscriber that is not
// keeping up loses rings rather than stalling the publisher.
type Hub struct {
	log *slog.Logger

	mu     sync.RWMutex
	subs   map[int]*hubSub
	nextID int
}

type hubSub struct {
	propertyID string
	ch         chan Ring
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, subs: make(map[int]*hubSub)}
}

func (h *Hub) PublishRing(ctx context.Context, ring Ring) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs {
		if sub.propertyID != "" && sub.propertyID != ring.PropertyID {
			continue
		}
		select {
		case sub.ch <- ring:
		default:
			h.log.Warn("ring dropped for slow subscriber",
				"op", "notify.hub.PublishRing",
				"subscriber", id,
				"call_id", ring.CallID,
			)
		}
	}
	return nil
}

func (h *Hub) SubscribeRings(propertyID string) (<-chan Ring, func(), error) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	sub := &hubSub{propertyID: propertyID, ch: make(chan Ring, subscriberBuffer)}
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}, nil
}
