package lockvendor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	ActionLock      = "lock"
	ActionUnlock    = "unlock"
	ActionIssueCode = "issue_code"

	ErrorCodeNotFound = "not_found"

	commandQoS = 1
)

// Command is published to <topic>/<device id>/command.
type Command struct {
	RequestID string             `json:"request_id"`
	Action    string             `json:"action"`
	DeviceID  string             `json:"device_id"`
	Window    *domain.TimeWindow `json:"window,omitempty"`
	ReplyTo   string             `json:"reply_to"`
}

// Reply comes back on the controller's reply topic.
type Reply struct {
	RequestID string    `json:"request_id"`
	OK        bool      `json:"ok"`
	ErrorCode string    `json:"error_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// MQTTController sends lock commands over MQTT and waits for the bridge's
// reply, correlated by request id.
type MQTTController struct {
	client     mqtt.Client
	topic      string
	replyTopic string
	timeout    time.Duration
	log        *slog.Logger

	mu      sync.Mutex
	pending map[string]chan Reply
}

func NewMQTTController(client mqtt.Client, topic, clientID string, timeout time.Duration, log *slog.Logger) (*MQTTController, error) {
	const op = "lockvendor.mqtt.New"
	if log == nil {
		log = slog.Default()
	}

	c := &MQTTController{
		client:     client,
		topic:      topic,
		replyTopic: fmt.Sprintf("%s/replies/%s-%s", topic, clientID, uuid.New().String()[:8]),
		timeout:    timeout,
		log:        log,
		pending:    make(map[string]chan Reply),
	}

	token := client.Subscribe(c.replyTopic, commandQoS, c.handleReply)
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (c *MQTTController) Lock(ctx context.Context, deviceID string) error {
	_, err := c.do(ctx, ActionLock, deviceID, nil)
	return err
}

func (c *MQTTController) Unlock(ctx context.Context, deviceID string) error {
	_, err := c.do(ctx, ActionUnlock, deviceID, nil)
	return err
}

func (c *MQTTController) IssueTemporaryCode(ctx context.Context, deviceID string, window domain.TimeWindow) (domain.TemporaryCode, error) {
	reply, err := c.do(ctx, ActionIssueCode, deviceID, &window)
	if err != nil {
		return domain.TemporaryCode{}, err
	}
	return domain.TemporaryCode{Code: reply.Code, ExpiresAt: reply.ExpiresAt}, nil
}

func (c *MQTTController) do(ctx context.Context, action, deviceID string, window *domain.TimeWindow) (Reply, error) {
	const op = "lockvendor.mqtt.do"
	log := c.log.With("op", op, "action", action, "device_id", deviceID)

	cmd := Command{
		RequestID: uuid.New().String(),
		Action:    action,
		DeviceID:  deviceID,
		Window:    window,
		ReplyTo:   c.replyTopic,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return Reply{}, fmt.Errorf("%s: %w", op, err)
	}

	replies := make(chan Reply, 1)
	c.mu.Lock()
	c.pending[cmd.RequestID] = replies
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, cmd.RequestID)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	token := c.client.Publish(c.commandTopic(deviceID), commandQoS, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			log.Warn("failed to publish lock command", sl.Err(err))
			return Reply{}, fmt.Errorf("%s: %w", op, err)
		}
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("%s: %w", op, ctx.Err())
	case <-timer.C:
		return Reply{}, fmt.Errorf("%s: %w", op, ErrTimeout)
	}

	select {
	case reply := <-replies:
		if reply.OK {
			log.Info("lock command applied")
			return reply, nil
		}
		if reply.ErrorCode == ErrorCodeNotFound {
			return Reply{}, fmt.Errorf("%s: %w", op, ErrDeviceNotFound)
		}
		return Reply{}, fmt.Errorf("%s: %w: %s", op, ErrRejected, reply.Error)
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("%s: %w", op, ctx.Err())
	case <-timer.C:
		log.Warn("lock command timed out", "timeout", c.timeout)
		return Reply{}, fmt.Errorf("%s: %w", op, ErrTimeout)
	}
}

func (c *MQTTController) handleReply(_ mqtt.Client, msg mqtt.Message) {
	var reply Reply
	if err := json.Unmarshal(msg.Payload(), &reply); err != nil {
		c.log.Warn("bad lock reply", "op", "lockvendor.mqtt.handleReply", "topic", msg.Topic(), sl.Err(err))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[reply.RequestID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- reply:
	default:
	}
}

func (c *MQTTController) commandTopic(deviceID string) string {
	return c.topic + "/" + deviceID + "/command"
}
