package lockvendor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Simulator answers lock commands for a fixed set of devices. It stands in
// for the vendor bridge when the service runs against the in-process broker.
type Simulator struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger

	mu        sync.Mutex
	devices   map[string]bool
	acceptAll bool
}

func NewSimulator(client mqtt.Client, topic string, log *slog.Logger) *Simulator {
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{client: client, topic: topic, log: log, devices: make(map[string]bool)}
}

// AddDevice registers a device as present and locked.
func (s *Simulator) AddDevice(deviceID string) {
	s.mu.Lock()
	s.devices[deviceID] = true
	s.mu.Unlock()
}

// AcceptAll makes unknown devices appear, locked, on their first command.
func (s *Simulator) AcceptAll() {
	s.mu.Lock()
	s.acceptAll = true
	s.mu.Unlock()
}

// Locked reports the simulated lock state of deviceID.
func (s *Simulator) Locked(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[deviceID]
}

func (s *Simulator) Start() error {
	token := s.client.Subscribe(s.topic+"/+/command", commandQoS, s.handle)
	token.Wait()
	return token.Error()
}

func (s *Simulator) Stop() {
	s.client.Unsubscribe(s.topic + "/+/command").Wait()
}

func (s *Simulator) handle(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		s.log.Warn("bad lock command", "op", "lockvendor.simulator.handle", sl.Err(err))
		return
	}
	if cmd.ReplyTo == "" || strings.Contains(cmd.ReplyTo, "+") {
		return
	}

	reply := s.apply(cmd)
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	client.Publish(cmd.ReplyTo, commandQoS, false, payload)
}

func (s *Simulator) apply(cmd Command) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := Reply{RequestID: cmd.RequestID}
	if _, ok := s.devices[cmd.DeviceID]; !ok && s.acceptAll {
		s.devices[cmd.DeviceID] = true
	}
	if _, ok := s.devices[cmd.DeviceID]; !ok {
		reply.ErrorCode = ErrorCodeNotFound
		reply.Error = "unknown device"
		return reply
	}

	switch cmd.Action {
	case ActionLock:
		s.devices[cmd.DeviceID] = true
	case ActionUnlock:
		s.devices[cmd.DeviceID] = false
	case ActionIssueCode:
		expires := time.Now().Add(time.Hour).UTC()
		if cmd.Window != nil && !cmd.Window.End.IsZero() {
			expires = cmd.Window.End
		}
		reply.Code = fmt.Sprintf("%06d", rand.IntN(1000000))
		reply.ExpiresAt = expires
	default:
		reply.Error = "unknown action " + cmd.Action
		return reply
	}
	reply.OK = true
	return reply
}
