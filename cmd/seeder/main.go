package main

import (
	"context"
	"flag"
	"fmt"
	"linkcard/internal/config"
	"linkcard/internal/pkg/logger"
	"linkcard/internal/pkg/urldetector"
	"linkcard/internal/repository/postgres"
	"linkcard/internal/repository/redis"
	"linkcard/internal/service/submit"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Seeder backfills previews for links already posted in a Discord channel.
// Each link is stored and queued exactly as POST /api/v1/previews would.
func main() {
	var (
		channelID = flag.String("channel", "", "Discord channel ID to seed from (required)")
		limit     = flag.Int("limit", 0, "Maximum number of messages to fetch (0 = no limit)")
		batchSize = flag.Int("batch", 100, "Number of messages to fetch per Discord API call (max 100)")
		beforeID  = flag.String("before", "", "Fetch messages before this message ID (for pagination)")
		afterID   = flag.String("after", "", "Fetch messages after this message ID (for pagination)")
		dryRun    = flag.Bool("dry-run", false, "Print what would be done without storing or queueing anything")
	)

	// Load configuration; this also parses the flags above
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Validate required flags
	if *channelID == "" {
		fmt.Fprintln(os.Stderr, "Error: -channel flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if *batchSize < 1 || *batchSize > 100 {
		fmt.Fprintln(os.Stderr, "Error: -batch must be between 1 and 100")
		os.Exit(1)
	}

	// Need the Discord token plus both stores
	if err := cfg.ValidateForBot(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateForWorker(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(cfg.LogLevel)
	log.Info("Starting Discord channel seeder...",
		"channel_id", *channelID,
		"limit", *limit,
		"batch_size", *batchSize,
		"dry_run", *dryRun,
	)

	// Connect to Discord
	discord, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Error("Failed to create Discord session", "error", err)
		os.Exit(1)
	}
	if _, err := discord.User("@me"); err != nil {
		log.Error("Failed to authenticate with Discord", "error", err)
		os.Exit(1)
	}
	log.Info("Successfully authenticated with Discord")

	db, err := postgres.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, log); err != nil {
		log.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := redis.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	previewRepo := postgres.NewPreviewRepository(db, log)
	queueRepo := redis.NewQueueRepository(redisClient, log)

	seeder := &Seeder{
		discord:     discord,
		submitter:   submit.New(previewRepo, queueRepo, cfg.Cache.TTL.Duration, log),
		urlDetector: urldetector.New(0),
		logger:      log,
		channelID:   *channelID,
		limit:       *limit,
		batchSize:   *batchSize,
		beforeID:    *beforeID,
		afterID:     *afterID,
		dryRun:      *dryRun,
		// Discord allows far more, but a backfill is not in a hurry
		pageDelay: 100 * time.Millisecond,
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seeder.Run(ctx); err != nil {
		log.Error("Seeder failed", "error", err)
		os.Exit(1)
	}

	log.Info("Seeder completed successfully")
}
