package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/notification-agent/internal/app"
	"github.com/ignite/notification-agent/internal/config"
	"github.com/ignite/notification-agent/internal/ingest"
	"github.com/ignite/notification-agent/internal/pkg/distlock"
	"github.com/ignite/notification-agent/internal/pkg/logger"
	"github.com/ignite/notification-agent/internal/storage"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	app.ConfigureLogger(cfg.Log)
	logger.Info("starting notification worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := app.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := app.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	deps := app.Deps{DB: db}
	if redisClient != nil {
		defer redisClient.Close()
		deps.Redis = redisClient
	}
	if awsClients, err := storage.NewAWSClients(ctx, cfg.AWS); err != nil {
		logger.Warn("AWS clients unavailable", "error", err)
	} else {
		deps.AWS = awsClients
	}

	eng, err := app.Build(ctx, cfg, deps)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	go eng.Catalog.Start(ctx)

	var wg sync.WaitGroup

	if cfg.Ingest.Kafka.Enabled {
		reader := ingest.NewKafkaReader(cfg.Ingest.Kafka.Brokers, cfg.Ingest.Kafka.Topic, cfg.Ingest.Kafka.GroupID)
		consumer := ingest.NewKafkaConsumer(reader, eng.Orchestrator)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
		logger.Info("kafka consumer started", "topic", cfg.Ingest.Kafka.Topic, "group", cfg.Ingest.Kafka.GroupID)
	}

	var scheduler *storage.ExportScheduler
	if cfg.Analytics.Enabled {
		if deps.AWS == nil || cfg.Analytics.S3Bucket == "" {
			log.Fatal("analytics export needs AWS credentials and analytics.s3_bucket")
		}
		exporter := storage.NewExporter(deps.AWS.S3, eng.Tracker, cfg.Analytics.S3Bucket, cfg.Analytics.S3Prefix)
		lockFor := func(key string) distlock.Lock {
			if redisClient != nil {
				return distlock.New(redisClient, db, key, time.Hour)
			}
			return distlock.New(nil, db, key, time.Hour)
		}
		scheduler, err = storage.NewExportScheduler(exporter, cfg.Analytics.ExportCron, lockFor)
		if err != nil {
			log.Fatalf("Failed to schedule analytics export: %v", err)
		}
		scheduler.Start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error("scheduler shutdown error", "error", err)
		}
	}
	wg.Wait()
	logger.Info("worker stopped")
}
