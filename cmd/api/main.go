package main

import (
	"context"
	"fmt"
	"linkcard/internal/config"
	linkhttp "linkcard/internal/http"
	"linkcard/internal/http/handlers"
	"linkcard/internal/pkg/logger"
	"linkcard/internal/repository/postgres"
	"linkcard/internal/repository/redis"
	"linkcard/internal/service/api"
	"linkcard/internal/service/lookup"
	"linkcard/internal/service/preview"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Validate API-specific configuration
	if err := cfg.ValidateForAPI(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(cfg.LogLevel)
	log.Info("Starting API service...")

	// Connect to PostgreSQL
	db, err := postgres.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run database migrations
	if err := postgres.RunMigrations(db, log); err != nil {
		log.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient, err := redis.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Create repositories
	previewRepo := postgres.NewPreviewRepository(db, log)
	queueRepo := redis.NewQueueRepository(redisClient, log)
	cache := redis.NewPreviewCache(redisClient, log)

	// Create preview engine
	engine, err := preview.New(log, cfg.EngineOptions())
	if err != nil {
		log.Error("Failed to create preview engine", "error", err)
		os.Exit(1)
	}
	lookupService := lookup.New(engine, cache, cfg.Cache.TTL.Duration, log)

	router := linkhttp.NewRouter(log, linkhttp.RouterDeps{
		Lookup:      lookupService,
		PreviewRepo: previewRepo,
		QueueRepo:   queueRepo,
		HealthChecks: map[string]handlers.HealthCheck{
			"postgres": func(ctx context.Context) error { return postgres.HealthCheck(ctx, db) },
			"redis":    func(ctx context.Context) error { return redis.HealthCheck(ctx, redisClient) },
		},
		APIKey:      cfg.APIKey,
		CORSOrigins: cfg.CORSOrigins,
		StaleAfter:  cfg.Cache.TTL.Duration,
	})

	// Create API service
	apiService := api.New(cfg, log, router.SetupRoutes())

	// Create a channel to track shutdown completion
	done := make(chan struct{})

	// Start API service in a goroutine
	go func() {
		defer close(done)
		if err := apiService.Start(); err != nil {
			log.Error("API service failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for either shutdown signal or service completion
	select {
	case <-quit:
		log.Info("Shutdown signal received, stopping API service...")
	case <-done:
		log.Info("API service completed")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop API service
	if err := apiService.Stop(ctx); err != nil {
		log.Error("Error stopping API service", "error", err)
	}

	log.Info("API service shutdown complete")
}
