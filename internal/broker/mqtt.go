// Package broker connects to the MQTT broker used for ring notifications and
// lock commands. An empty broker address selects an in-process broker.
package broker

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/developer387/doorbell-app-sub000/internal/config"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const MemoryBroker = "memory"

// Connect returns a connected client for cfg.
func Connect(cfg config.MQTTConfig, log *slog.Logger) (mqtt.Client, error) {
	const op = "broker.Connect"
	log = log.With("op", op, "broker", cfg.Broker)

	if cfg.Broker == "" || cfg.Broker == MemoryBroker {
		log.Info("using in-process mqtt broker")
		client := NewMemoryClient()
		client.Connect().Wait()
		return client, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		log.Debug("unhandled mqtt message", "topic", msg.Topic())
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", sl.Err(err))
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info("mqtt connected")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Info("mqtt reconnecting")
	})

	client := mqtt.NewClient(opts)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 16 * time.Second
	err := backoff.RetryNotify(func() error {
		token := client.Connect()
		if !token.WaitTimeout(cfg.Timeout) {
			return fmt.Errorf("connect timed out after %s", cfg.Timeout)
		}
		return token.Error()
	}, backoff.WithMaxRetries(b, 4), func(err error, wait time.Duration) {
		log.Warn("mqtt connect failed", sl.Err(err), "retry_in", wait)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return client, nil
}

// Wait blocks on token for at most timeout and returns its error.
func Wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}
