package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ignite/notification-agent/internal/api"
	"github.com/ignite/notification-agent/internal/app"
	"github.com/ignite/notification-agent/internal/config"
	"github.com/ignite/notification-agent/internal/pkg/logger"
	"github.com/ignite/notification-agent/internal/storage"
	"github.com/ignite/notification-agent/internal/tracking"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s is already in use: %v", addr, err)
	}
	ln.Close()
	return nil
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func main() {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	app.ConfigureLogger(cfg.Log)

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := app.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	redisClient, err := app.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	deps := app.Deps{DB: db}
	if redisClient != nil {
		defer redisClient.Close()
		deps.Redis = redisClient
	}

	awsClients, err := storage.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		logger.Warn("AWS clients unavailable, SES/SQS/DynamoDB features disabled", "error", err)
	} else {
		deps.AWS = awsClients
	}

	eng, err := app.Build(ctx, cfg, deps)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	go eng.Catalog.Start(ctx)

	// Delivery callbacks queued on SQS, ours and SES event notifications.
	if deps.AWS != nil {
		for _, q := range []string{cfg.Tracking.SQSQueueURL, cfg.Tracking.SESEventsQueueURL} {
			if q == "" {
				continue
			}
			consumer := tracking.NewConsumer(deps.AWS.SQS, q, eng.Tracker, cfg.Tracking.PollWaitSeconds)
			go consumer.Run(ctx)
			logger.Info("tracking consumer started", "queue", q)
		}
	}

	handlers := api.NewHandlers(eng.Orchestrator, eng.Tracker, eng.Catalog)
	health := api.NewHealthChecker(db, deps.Redis, eng.Catalog)
	server := api.NewServer(cfg.Server, handlers, health, tracking.NewHandler(eng.Sink, eng.Links))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr(), "channels", eng.Dispatcher.Channels())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
