package main

import (
	"context"
	"fmt"
	"linkcard/internal/config"
	"linkcard/internal/pkg/logger"
	"linkcard/internal/repository/postgres"
	"linkcard/internal/repository/redis"
	"linkcard/internal/service/lookup"
	"linkcard/internal/service/preview"
	"linkcard/internal/service/worker"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Validate worker-specific configuration
	if err := cfg.ValidateForWorker(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(cfg.LogLevel)
	log.Info("Starting worker service...")

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

	engine, err := preview.New(log, cfg.EngineOptions())
	if err != nil {
		log.Error("Failed to create preview engine", "error", err)
		os.Exit(1)
	}

	// The worker only writes the cache; lookups go through the API
	cacheWriter := lookup.New(engine, cache, cfg.Cache.TTL.Duration, log)
	processor := worker.NewJobProcessor(log, engine, previewRepo, cacheWriter)
	workerService := worker.New(cfg.Worker, log, queueRepo, processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workerService.Run(ctx); err != nil {
		log.Error("Worker service failed", "error", err)
		os.Exit(1)
	}

	stats := workerService.GetStats()
	log.Info("Worker service shutdown complete",
		"jobs_processed", stats.JobsProcessed,
		"jobs_failed", stats.JobsFailed,
		"average_job_time", stats.AverageJobTime,
	)
}
