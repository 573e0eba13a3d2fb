package broker

import (
	"errors"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrTimeout      = errors.New("mqtt operation timed out")
	ErrNotConnected = errors.New("mqtt client not connected")
)

// MemoryClient is an mqtt.Client that routes messages between its own
// subscriptions. Clients created with NewLinkedClient share one bus.
type MemoryClient struct {
	bus *memoryBus

	mu        sync.Mutex
	connected bool
	routes    map[string]mqtt.MessageHandler
}

type memoryBus struct {
	mu      sync.RWMutex
	clients []*MemoryClient
}

func NewMemoryClient() *MemoryClient {
	return newMemoryClient(&memoryBus{})
}

// NewLinkedClient returns a client on the same bus as c.
func (c *MemoryClient) NewLinkedClient() *MemoryClient {
	return newMemoryClient(c.bus)
}

func newMemoryClient(bus *memoryBus) *MemoryClient {
	c := &MemoryClient{bus: bus, routes: make(map[string]mqtt.MessageHandler)}
	bus.mu.Lock()
	bus.clients = append(bus.clients, c)
	bus.mu.Unlock()
	return c
}

func (c *MemoryClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *MemoryClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *MemoryClient) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return doneToken(nil)
}

func (c *MemoryClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.routes = make(map[string]mqtt.MessageHandler)
	c.mu.Unlock()
}

func (c *MemoryClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if !c.IsConnected() {
		return doneToken(ErrNotConnected)
	}

	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = append([]byte(nil), p...)
	case string:
		body = []byte(p)
	default:
		return doneToken(errors.New("unknown payload type"))
	}

	msg := &memoryMessage{topic: topic, qos: qos, retained: retained, payload: body}

	c.bus.mu.RLock()
	clients := append([]*MemoryClient(nil), c.bus.clients...)
	c.bus.mu.RUnlock()

	for _, client := range clients {
		for _, handler := range client.matching(topic) {
			go handler(client, msg)
		}
	}
	return doneToken(nil)
}

func (c *MemoryClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	if !c.IsConnected() {
		return doneToken(ErrNotConnected)
	}
	c.mu.Lock()
	c.routes[topic] = callback
	c.mu.Unlock()
	return doneToken(nil)
}

func (c *MemoryClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		if token := c.Subscribe(topic, qos, callback); token.Error() != nil {
			return token
		}
	}
	return doneToken(nil)
}

func (c *MemoryClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.routes, topic)
	}
	c.mu.Unlock()
	return doneToken(nil)
}

func (c *MemoryClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	c.routes[topic] = callback
	c.mu.Unlock()
}

func (c *MemoryClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (c *MemoryClient) matching(topic string) []mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	var out []mqtt.MessageHandler
	for filter, handler := range c.routes {
		if handler != nil && TopicMatches(filter, topic) {
			out = append(out, handler)
		}
	}
	return out
}

// TopicMatches reports whether topic matches an MQTT filter with + and #.
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

type memoryMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func (m *memoryMessage) Duplicate() bool   { return false }
func (m *memoryMessage) Qos() byte         { return m.qos }
func (m *memoryMessage) Retained() bool    { return m.retained }
func (m *memoryMessage) Topic() string     { return m.topic }
func (m *memoryMessage) MessageID() uint16 { return 0 }
func (m *memoryMessage) Payload() []byte   { return m.payload }
func (m *memoryMessage) Ack()              {}

type memoryToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) mqtt.Token {
	t := &memoryToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *memoryToken) Wait() bool                     { return true }
func (t *memoryToken) WaitTimeout(time.Duration) bool { return true }
func (t *memoryToken) Done() <-chan struct{}          { return t.done }
func (t *memoryToken) Error() error                   { return t.err }
