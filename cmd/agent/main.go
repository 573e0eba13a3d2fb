// Command agent is a headless doorbell endpoint. In owner mode it answers
// rings for a property; in guest mode it rings once and waits for the call
// to finish. It must share the server's redis store and mqtt broker.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/app"
	"github.com/developer387/doorbell-app-sub000/internal/broker"
	"github.com/developer387/doorbell-app-sub000/internal/call"
	"github.com/developer387/doorbell-app-sub000/internal/callstate"
	"github.com/developer387/doorbell-app-sub000/internal/config"
	"github.com/developer387/doorbell-app-sub000/internal/notify"
	"github.com/developer387/doorbell-app-sub000/internal/peer"
	"github.com/developer387/doorbell-app-sub000/internal/service"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	"github.com/joho/godotenv"
)

const (
	modeOwner = "owner"
	modeGuest = "guest"
)

var errSharedInfra = errors.New("agent needs the redis store and an external mqtt broker")

func main() {
	var (
		mode        string
		propertyID  string
		ownerID     string
		autoAnswer  bool
		hangupAfter time.Duration
	)
	flag.StringVar(&mode, "mode", modeOwner, "owner or guest")
	flag.StringVar(&propertyID, "property", "", "property id to ring or to answer for")
	flag.StringVar(&ownerID, "owner", "agent", "owner id reported in call participants")
	flag.BoolVar(&autoAnswer, "auto-answer", true, "owner mode: accept every ring, decline otherwise")
	flag.DurationVar(&hangupAfter, "hangup-after", 0, "hang up an active call after this long; 0 waits for the other side")

	_ = godotenv.Load(".env")
	cfg := config.MustLoad()
	log := app.SetupLogger(cfg.Env).With("mode", mode, "property_id", propertyID)

	if cfg.Store.Driver != config.StoreDriverRedis || cfg.MQTT.Broker == "" || cfg.MQTT.Broker == broker.MemoryBroker {
		log.Error("cannot start agent", sl.Err(errSharedInfra))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.CallStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open call store", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	channel := signaling.NewChannel(store, log)
	factory := peer.NewPionFactory(cfg.WebRTC.STUNServers, log)

	switch mode {
	case modeGuest:
		err = runGuest(ctx, cfg, channel, factory, propertyID, hangupAfter, log)
	case modeOwner:
		err = runOwner(ctx, cfg, channel, factory, ownerID, propertyID, autoAnswer, hangupAfter, log)
	default:
		log.Error("unknown mode")
		os.Exit(2)
	}
	if err != nil {
		log.Error("agent stopped", sl.Err(err))
		os.Exit(1)
	}
}

func runGuest(
	ctx context.Context,
	cfg *config.Config,
	channel *signaling.Channel,
	factory peer.Factory,
	propertyID string,
	hangupAfter time.Duration,
	log *slog.Logger,
) error {
	session := call.NewGuestSession(channel, factory, log, call.WithUnansweredTimeout(cfg.WebRTC.UnansweredTimeout))
	session.OnChange(func(state call.GuestState) {
		log.Info("guest phase", "phase", state.Phase, "call_id", state.CallID, "shared_locks", len(state.SharedLocks))
	})

	// Ringing through the store skips the server, so the ring is published here.
	callID, err := session.Ring(ctx, propertyID)
	if err != nil {
		return err
	}
	if err := publishRing(ctx, cfg, callID, propertyID, log); err != nil {
		log.Warn("failed to ring owner", sl.Err(err))
	}

	var hangup <-chan time.Time
	if hangupAfter > 0 {
		hangup = time.After(hangupAfter)
	}
	select {
	case <-session.Done():
	case <-hangup:
		return session.Hangup(context.Background())
	case <-ctx.Done():
		return session.Hangup(context.Background())
	}

	state := session.State()
	log.Info("call finished", "phase", state.Phase)
	if state.Err != nil && !errors.Is(state.Err, call.ErrCallFinished) {
		return state.Err
	}
	return nil
}

func runOwner(
	ctx context.Context,
	cfg *config.Config,
	channel *signaling.Channel,
	factory peer.Factory,
	ownerID, propertyID string,
	autoAnswer bool,
	hangupAfter time.Duration,
	log *slog.Logger,
) error {
	client, err := broker.Connect(cfg.MQTT, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	tokens, err := service.NewTokenService(cfg.Token.Secret, cfg.Token.Issuer, cfg.Token.TTL)
	if err != nil {
		return err
	}

	rings := notify.NewMQTTNotifier(client, cfg.MQTT.RingTopic, cfg.MQTT.Timeout, log)
	manager, err := call.NewManager(ownerID, propertyID, rings, channel, factory, tokens, callstate.NewMachine(log), log)
	if err != nil {
		return err
	}
	defer manager.Close(context.Background())

	manager.OnIncoming(func(in *call.IncomingCall) {
		log := log.With("call_id", in.CallID)
		if !autoAnswer {
			if err := in.Decline(ctx); err != nil {
				log.Warn("failed to decline", sl.Err(err))
			}
			return
		}
		session, err := in.Accept(ctx)
		if err != nil {
			log.Warn("failed to accept", sl.Err(err))
			return
		}
		session.OnStateChange(func(next, prev callstate.State) {
			log.Info("owner state", "from", prev.Kind, "to", next.Kind)
		})
		if hangupAfter > 0 {
			go func() {
				select {
				case <-time.After(hangupAfter):
					_ = session.Hangup(context.Background())
				case <-session.Done():
				}
			}()
		}
	})

	log.Info("waiting for rings")
	<-ctx.Done()
	return nil
}

func publishRing(ctx context.Context, cfg *config.Config, callID, propertyID string, log *slog.Logger) error {
	client, err := broker.Connect(cfg.MQTT, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	n := notify.NewMQTTNotifier(client, cfg.MQTT.RingTopic, cfg.MQTT.Timeout, log)
	return n.PublishRing(ctx, notify.Ring{CallID: callID, PropertyID: propertyID, CreatedAt: time.Now().UTC()})
}
