// Package app builds the stores and clients both binaries share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/config"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/developer387/doorbell-app-sub000/internal/repository/model"
	"github.com/developer387/doorbell-app-sub000/lib/logger/slogpretty"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

var ErrUnknownStoreDriver = errors.New("unknown store driver")

func SetupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

// CallStore opens the shared signaling document store. The returned close
// func is safe to call for every driver.
func CallStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.CallRepository, func() error, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Info("using in-memory call store")
		return repository.NewInMemoryCallRepository(), func() error { return nil }, nil
	case config.StoreDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("using redis call store", slog.String("addr", cfg.Redis.Addr))
		return repository.NewRedisCallRepository(client), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStoreDriver, cfg.Store.Driver)
	}
}

// Rosters groups the stores behind properties, guests and locks.
type Rosters struct {
	Properties repository.PropertyRepository
	Guests     repository.GuestRepository
	Locks      repository.LockRepository
}

// OpenRosters uses postgres when a dsn is configured and memory otherwise.
func OpenRosters(cfg config.DatabaseConfig, log *slog.Logger) (*Rosters, error) {
	if cfg.DSN == "" {
		log.Warn("database dsn is empty, keeping properties in memory")
		return &Rosters{
			Properties: repository.NewInMemoryPropertyRepository(),
			Guests:     repository.NewInMemoryGuestRepository(),
			Locks:      repository.NewInMemoryLockRepository(),
		}, nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return &Rosters{
		Properties: repository.NewPostgresPropertyRepository(db),
		Guests:     repository.NewPostgresGuestRepository(db),
		Locks:      repository.NewPostgresLockRepository(db),
	}, nil
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.Property{}, &model.Guest{}, &model.Lock{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
