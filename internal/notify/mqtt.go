package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const ringQoS = 1

// MQTTNotifier publishes rings to <topic>/<property id>.
type MQTTNotifier struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	log     *slog.Logger
}

func NewMQTTNotifier(client mqtt.Client, topic string, timeout time.Duration, log *slog.Logger) *MQTTNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTNotifier{client: client, topic: topic, timeout: timeout, log: log}
}

func (n *MQTTNotifier) PublishRing(ctx context.Context, ring Ring) error {
	const op = "notify.mqtt.PublishRing"

	payload, err := json.Marshal(ring)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	token := n.client.Publish(n.topicFor(ring.PropertyID), ringQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case <-time.After(n.timeout):
		return fmt.Errorf("%s: %w", op, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SubscribeRings subscribes to one property's topic, or to all of them.
// The broker client keeps a single handler per filter, so a second
// subscription to the same filter replaces the first.
func (n *MQTTNotifier) SubscribeRings(propertyID string) (<-chan Ring, func(), error) {
	const op = "notify.mqtt.SubscribeRings"
	log := n.log.With("op", op)

	filter := n.topicFor(propertyID)
	if propertyID == "" {
		filter = n.topic + "/+"
	}

	var (
		mu     sync.Mutex
		closed bool
	)
	ch := make(chan Ring, subscriberBuffer)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var ring Ring
		if err := json.Unmarshal(msg.Payload(), &ring); err != nil {
			log.Warn("bad ring payload", "topic", msg.Topic(), sl.Err(err))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ring:
		default:
			log.Warn("ring dropped for slow subscriber", "call_id", ring.CallID)
		}
	}

	token := n.client.Subscribe(filter, ringQoS, handler)
	if !token.WaitTimeout(n.timeout) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.client.Unsubscribe(filter).WaitTimeout(n.timeout)
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (n *MQTTNotifier) topicFor(propertyID string) string {
	return n.topic + "/" + propertyID
}
