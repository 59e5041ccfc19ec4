package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roomrelay/internal/config"
	"roomrelay/internal/http/http_server"
	"roomrelay/internal/http/roomhandler"
	"roomrelay/internal/redis/peerbus"
	"roomrelay/internal/redis/redis_client"
	"roomrelay/internal/relay"
	"roomrelay/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Relay core: registry, room directory, presence, signal routing
	registry := relay.NewRegistry(cfg.WsSendQueueSize)
	coord := relay.NewCoordinator(registry, relay.NewDirectory())
	router := relay.NewRouter(registry)

	// 4. Optional Redis bus for signals addressed to peers on other instances
	var ping roomhandler.Pinger
	if cfg.RedisEnabled {
		var redisClient *redis.Client
		redisClient, err = redis_client.NewRedisClient(ctx, redis_client.Options{
			Host:     cfg.RedisHost,
			Port:     int(cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		Log.Debug("Redis client created successfully")

		bus := peerbus.New(ctx, redisClient, router.DeliverLocal)
		router.WithForwarder(bus)
		coord.WithHook(bus)
		ping = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	// 5. WebSocket server
	hub := ws.NewHub(coord, router)
	wsSrv := ws.NewWsServer(hub, ws.Options{
		MaxMessageBytes: cfg.WsMaxMessageBytes,
		PongWait:        cfg.WsPongWait,
		AllowedOrigins:  cfg.AllowedOrigins,
	})

	// 6. HTTP + WS server
	rooms := roomhandler.New(hub, cfg.SignalingServer, ping)
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, rooms)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	select {
	case err = <-errCh:
		if err != nil {
			Log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	case <-ctx.Done():
		Log.Info("shutdown_requested")
		_ = httpServer.Dispose()
		hub.Shutdown()
	}
}
