package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/developer387/doorbell-app-sub000/internal/api/http"
	"github.com/developer387/doorbell-app-sub000/internal/app"
	"github.com/developer387/doorbell-app-sub000/internal/broker"
	"github.com/developer387/doorbell-app-sub000/internal/config"
	"github.com/developer387/doorbell-app-sub000/internal/lockvendor"
	"github.com/developer387/doorbell-app-sub000/internal/metrics"
	"github.com/developer387/doorbell-app-sub000/internal/notify"
	"github.com/developer387/doorbell-app-sub000/internal/service"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/developer387/doorbell-app-sub000/internal/worker"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := app.SetupLogger(cfg.Env)
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rosters, err := app.OpenRosters(cfg.Database, log)
	if err != nil {
		log.Error("failed to connect database", sl.Err(err))
		os.Exit(1)
	}

	callStore, closeStore, err := app.CallStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open call store", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	mqttClient, err := broker.Connect(cfg.MQTT, log)
	if err != nil {
		log.Error("failed to connect mqtt broker", sl.Err(err))
		os.Exit(1)
	}
	defer mqttClient.Disconnect(250)

	if memory, ok := mqttClient.(*broker.MemoryClient); ok {
		bridge := memory.NewLinkedClient()
		bridge.Connect().Wait()
		sim := lockvendor.NewSimulator(bridge, cfg.MQTT.LockTopic, log)
		sim.AcceptAll()
		if err := sim.Start(); err != nil {
			log.Error("failed to start lock simulator", sl.Err(err))
			os.Exit(1)
		}
		defer sim.Stop()
		log.Info("lock commands answered by the in-process simulator")
	}

	vendor, err := lockvendor.NewMQTTController(mqttClient, cfg.MQTT.LockTopic, cfg.MQTT.ClientID, cfg.MQTT.Timeout, log)
	if err != nil {
		log.Error("failed to start lock controller", sl.Err(err))
		os.Exit(1)
	}

	tokens, err := service.NewTokenService(cfg.Token.Secret, cfg.Token.Issuer, cfg.Token.TTL)
	if err != nil {
		log.Error("failed to set up tokens", sl.Err(err))
		os.Exit(1)
	}

	channel := signaling.NewChannel(callStore, log)
	rings := notify.Multi{
		notify.NewHub(log),
		notify.NewMQTTNotifier(mqttClient, cfg.MQTT.RingTopic, cfg.MQTT.Timeout, log),
	}

	callService := service.NewCallService(channel, rosters.Properties, rings, tokens, log)
	accessService := service.NewAccessService(rosters.Properties, rosters.Guests, rosters.Locks, channel, vendor, log)
	propertyService := service.NewPropertyService(rosters.Properties, rosters.Guests, rosters.Locks, tokens, log)

	sweeper := worker.NewSweeper(callStore, channel, cfg.Sweep.Interval, cfg.Sweep.MaxRinging, cfg.Sweep.MaxConnected, log)
	go sweeper.Run(ctx)

	router := httpapi.SetupRouter(
		tokens,
		httpapi.NewCallController(callService, log),
		httpapi.NewAccessController(accessService),
		httpapi.NewPropertyController(propertyService),
		cfg.HTTP.AllowOrigins,
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", sl.Err(err))
		}
	}()

	log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("store", cfg.Store.Driver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("application stopped")
}
