// Command tracking is the standalone callback receiver. It verifies and
// enqueues status updates on SQS; the server's consumer applies them.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/notification-agent/internal/app"
	"github.com/ignite/notification-agent/internal/config"
	"github.com/ignite/notification-agent/internal/pkg/logger"
	"github.com/ignite/notification-agent/internal/storage"
	"github.com/ignite/notification-agent/internal/tracking"
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

	if cfg.Tracking.SQSQueueURL == "" {
		log.Fatal("tracking.sqs_queue_url is required")
	}
	if cfg.Tracking.BaseURL == "" || cfg.Tracking.SigningKey == "" {
		log.Fatal("tracking.base_url and tracking.signing_key are required")
	}

	clients, err := storage.NewAWSClients(context.Background(), cfg.AWS)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	pub := tracking.NewPublisher(clients.SQS, cfg.Tracking.SQSQueueURL)
	handler := tracking.NewHandler(pub, tracking.NewLinks(cfg.Tracking.BaseURL, cfg.Tracking.SigningKey))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	handler.Routes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
