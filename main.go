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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zlnvch/canvasync/api"
	"github.com/zlnvch/canvasync/api/ws"
	"github.com/zlnvch/canvasync/cache"
	"github.com/zlnvch/canvasync/cache/redis"
	"github.com/zlnvch/canvasync/config"
	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/logging"
	"github.com/zlnvch/canvasync/mq"
	"github.com/zlnvch/canvasync/mq/memmq"
	"github.com/zlnvch/canvasync/mq/sqsmq"
	"github.com/zlnvch/canvasync/presence"
	"github.com/zlnvch/canvasync/service"
	"github.com/zlnvch/canvasync/store"
	"github.com/zlnvch/canvasync/store/dynamo"
	"github.com/zlnvch/canvasync/store/memory"
	"github.com/zlnvch/canvasync/store/postgres"
)

var version = "dev"

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("Failed to load config", err)
	}

	logging.Init(logging.Config{
		Service: "canvasync",
		Version: version,
		Backend: cfg.Log.Backend,
		Level:   cfg.Log.Level,
	})

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.Store.Backend == "postgres" || cfg.Presence.Backend == "postgres" {
		pool, err = postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			ApplicationName: "canvasync",
		})
		if err != nil {
			fatal("Failed to connect to postgres", err)
		}
		defer pool.Close()

		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			fatal("Failed to create postgres schema", err)
		}
	}

	var redisCache *redis.RedisCanvasCache
	if cfg.Presence.Backend == "redis" {
		redisCache, err = redis.NewRedisCanvasCache(ctx, cfg.Redis.TLS, cfg.Redis.Endpoint, cfg.Presence.StaleAfter, cfg.Snapshot.TTL)
		if err != nil {
			fatal("Failed to create redis cache", err)
		}
	}

	var operationStore store.OperationStore
	switch cfg.Store.Backend {
	case "dynamo":
		operationStore, err = dynamo.NewDynamoOperationStore(ctx, cfg.DevMode, cfg.Dynamo.Endpoint, cfg.Dynamo.Table)
		if err != nil {
			fatal("Failed to create dynamodb store", err)
		}
	case "postgres":
		operationStore = postgres.NewPostgresOperationStore(pool)
	default:
		operationStore = memory.NewMemoryOperationStore()
	}

	var registry presence.Registry
	switch cfg.Presence.Backend {
	case "redis":
		registry = redisCache
	case "postgres":
		registry = postgres.NewPostgresPresenceRegistry(pool, cfg.Presence.StaleAfter)
	default:
		registry = presence.NewMemoryRegistry(cfg.Presence.StaleAfter)
	}

	// Snapshots live next to presence when redis is available
	var snapshots cache.SnapshotCache = cache.NewMemorySnapshotCache(cfg.Snapshot.TTL)
	if redisCache != nil {
		snapshots = redisCache
	}

	var snapshotQueue mq.MessageQueue
	switch cfg.Queue.Backend {
	case "sqs":
		snapshotQueue, err = sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQS.Endpoint, cfg.SQS.Queue)
		if err != nil {
			fatal("Failed to create SQS MQ", err)
		}
	default:
		snapshotQueue = memmq.NewMemoryMessageQueue()
	}

	svc := service.NewService(
		operationStore,
		registry,
		hub.NewHub(),
		snapshots,
		snapshotQueue,
		service.CanvasSize{Width: cfg.Snapshot.Width, Height: cfg.Snapshot.Height},
	)

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	canvasyncAPI := api.NewCanvasyncAPI(svc, ws.ClientConfig{
		SendBuffer:            cfg.Session.SendBuffer,
		MessagesPerSecond:     cfg.Session.MessagesPerSecond,
		Burst:                 cfg.Session.Burst,
		MaxRooms:              cfg.Session.MaxRooms,
		MaxConnectionsPerUser: cfg.Session.MaxConnectionsPerUser,
		CursorInterval:        cfg.Session.CursorInterval,
	}, shutdownCtx)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           canvasyncAPI.Router(cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "addr", cfg.HTTP.Addr, "store", cfg.Store.Backend, "presence", cfg.Presence.Backend, "queue", cfg.Queue.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Server failed", err)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
