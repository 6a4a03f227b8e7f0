package main

import (
	"context"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/backend/postgres"
	"github.com/handlebauer/chat-genius-sub000/internal/backend/realtimeredis"
	"github.com/handlebauer/chat-genius-sub000/internal/config"
	"github.com/handlebauer/chat-genius-sub000/internal/server"
	chatsync "github.com/handlebauer/chat-genius-sub000/internal/sync"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("no .env file: ", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return
	}

	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	if err := retry.Fibonacci(ctx, time.Second, func(ctx context.Context) error {
		return retry.RetryableError(redisClient.Ping(ctx).Err())
	}); err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		return
	}
	slog.Info("Redis inited")

	var db *sqlx.DB
	if err := retry.Fibonacci(ctx, time.Second, func(ctx context.Context) error {
		var connErr error
		db, connErr = postgres.Connect(cfg.Database.DSN())
		return retry.RetryableError(connErr)
	}); err != nil {
		slog.Error("Failed to connect to postgres", "error", err)
		return
	}
	slog.Info("Database inited")

	if err := goose.SetDialect("postgres"); err != nil {
		slog.Error("Failed to set dialect (migrations)", "error", err)
		return
	}

	migrationsPath := filepath.Join("internal", "backend", "postgres", "migrations")
	if err := goose.Up(db.DB, migrationsPath); err != nil {
		slog.Error("Failed to migrate up", "error", err)
		return
	}
	slog.Info("Migrations completed")

	rt := realtimeredis.New(redisClient, cfg.Sync.HeartbeatWindow)
	store := postgres.NewStore(db, rt)

	backends := chatsync.Backends{
		Channels: store,
		Messages: store,
		Unread:   store,
		Users:    store,
		Realtime: rt,
	}
	timings := chatsync.Timings{
		IdleTimeout:       cfg.Sync.IdleTimeout,
		IdlePollInterval:  cfg.Sync.IdlePollInterval,
		ActivityThreshold: cfg.Sync.ActivityThreshold,
		ActivityCooldown:  cfg.Sync.ActivityCooldown,
		HeartbeatInterval: cfg.Sync.HeartbeatInterval,
	}

	registry := server.NewSessionRegistry(backends, timings, store)

	srv := server.NewServer(
		registry,
		cfg.JWT.Secret,
		server.WithMigrateDown(func() error {
			return goose.DownTo(db.DB, migrationsPath, 0)
		}),
	)
	if err := srv.Run(":" + cfg.App.Port); err != nil {
		slog.Error("Server stopped", "error", err)
	}
}
