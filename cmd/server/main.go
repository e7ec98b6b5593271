package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/handler"
	"github.com/playfab-session/internal/kafka"
	"github.com/playfab-session/internal/playfab"
	"github.com/playfab-session/internal/postgres"
	"github.com/playfab-session/internal/redis"
	"github.com/playfab-session/internal/service"
	"github.com/playfab-session/internal/session"
	"github.com/playfab-session/internal/websocket"
	"github.com/playfab-session/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config file not found, using defaults and environment", "path", *configPath)
		cfg, err = config.FromEnv()
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var readyChecks = map[string]handler.ReadyCheck{}

	// Conversation store
	var store session.Store
	switch cfg.Session.Store {
	case "memory":
		store = session.NewMemoryStore(cfg.Session.TTL)
		logger.Info("using in-memory session store", "ttl", cfg.Session.TTL)
	default:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisStore, err := redis.NewSessionStore(&cfg.Redis, cfg.Session.TTL, logger)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
		readyChecks["redis"] = redisStore.Ping
		logger.Info("connected to Redis")
	}

	// Player backend
	api := playfab.NewClient(playfab.NewHTTPCaller(&cfg.PlayFab, logger), cfg.PlayFab.TitleID)
	logger.Info("player backend configured", "endpoint", cfg.PlayFab.Endpoint())

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	playerService := service.NewPlayerService(api, store, &cfg.Login, &cfg.Leaderboard, logger)
	playerService.SetNewProfileFunc(service.RandomNames)
	playerService.SetHub(wsHub)

	httpHandler := handler.NewHandler(playerService, wsHub, logger)

	// Event journal and profile snapshots
	var syncWorker *worker.SyncWorker
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()

		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		playerService.AddRecorder(postgresRepo)
		httpHandler.SetJournal(postgresRepo)
		readyChecks["postgres"] = postgresRepo.Ping

		if cfg.Sync.Enabled {
			syncWorker = worker.NewSyncWorker(playerService, postgresRepo, &cfg.Sync, logger)
			if err := syncWorker.Start(ctx); err != nil {
				logger.Error("failed to start sync worker", "error", err)
				os.Exit(1)
			}
		}
	}

	// Event stream and queued stat submissions
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewEventPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without event stream", "error", err)
		} else {
			defer publisher.Close()
			playerService.AddRecorder(publisher)
		}

		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.StatsTopic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, playerService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	for name, check := range readyChecks {
		httpHandler.AddReadyCheck(name, check)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	wsHub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if syncWorker != nil {
		if err := syncWorker.Stop(); err != nil {
			logger.Error("failed to stop sync worker", "error", err)
		}
		// Flush the profiles changed since the last cycle.
		if _, err := syncWorker.RunOnce(shutdownCtx); err != nil {
			logger.Error("final profile sync failed", "error", err)
		}
	}

	logger.Info("server stopped")
}
