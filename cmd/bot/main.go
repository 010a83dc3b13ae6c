package main

import (
	"context"
	"fmt"
	"linkcard/internal/config"
	"linkcard/internal/domain"
	"linkcard/internal/pkg/logger"
	"linkcard/internal/repository/redis"
	"linkcard/internal/service/bot"
	"linkcard/internal/service/lookup"
	"linkcard/internal/service/preview"
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

	// Validate bot-specific configuration
	if err := cfg.ValidateForBot(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(cfg.LogLevel)
	log.Info("Starting bot service...")

	// Redis is optional for the bot; without it every link is resolved fresh
	var cache domain.PreviewCache
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL, log)
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		cache = redis.NewPreviewCache(redisClient, log)
	} else {
		log.Warn("REDIS_URL not set - previews will not be cached")
	}

	engine, err := preview.New(log, cfg.EngineOptions())
	if err != nil {
		log.Error("Failed to create preview engine", "error", err)
		os.Exit(1)
	}
	lookupService := lookup.New(engine, cache, cfg.Cache.TTL.Duration, log)

	// Create bot service
	botService, err := bot.New(cfg, log, lookupService)
	if err != nil {
		log.Error("Failed to create bot service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := botService.Run(ctx); err != nil {
		log.Error("Bot service failed", "error", err)
		os.Exit(1)
	}

	log.Info("Bot service shutdown complete")
}
