package bot

import (
	"context"
	"fmt"
	"linkcard/internal/config"
	"linkcard/internal/pkg/urldetector"
	"linkcard/internal/service/lookup"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	// maxURLsPerMessage caps how many links one message can make the bot unfurl
	maxURLsPerMessage = 3

	lookupTimeout = 15 * time.Second
)

// Lookuper resolves previews on demand
type Lookuper interface {
	Lookup(ctx context.Context, rawURL string) (*lookup.Result, error)
}

// BotService unfurls links posted in Discord channels
type BotService struct {
	config      *config.Config
	logger      *slog.Logger
	session     *discordgo.Session
	lookup      Lookuper
	urlDetector *urldetector.Detector

	// Cancelled on Stop so in-flight lookups end with the connection
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new bot service
func New(config *config.Config, logger *slog.Logger, lookup Lookuper) (*BotService, error) {
	ctx, cancel := context.WithCancel(context.Background())

	botService := &BotService{
		config:      config,
		logger:      logger,
		lookup:      lookup,
		urlDetector: urldetector.New(maxURLsPerMessage),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Create Discord session
	session, err := discordgo.New("Bot " + config.DiscordToken)
	if err != nil {
		cancel()
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	botService.session = session

	// Register handlers
	botService.registerHandlers()

	return botService, nil
}

// Run connects to Discord and serves events until ctx is cancelled
func (s *BotService) Run(ctx context.Context) error {
	s.logger.Info("Starting Discord bot...")

	// Open connection to Discord
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	s.logger.Info("Bot is running")
	<-ctx.Done()

	s.logger.Info("Shutting down Discord bot...")
	return s.Stop()
}

func (s *BotService) Stop() error {
	s.cancel()

	if s.session != nil {
		s.logger.Info("Closing Discord connection...")
		if err := s.session.Close(); err != nil {
			s.logger.Error("Error closing Discord connection", "error", err)
			return err
		}
	}

	s.logger.Info("Discord bot stopped")
	return nil
}

func (s *BotService) registerHandlers() {
	s.session.AddHandler(s.onReady)
	s.session.AddHandler(s.onMessageCreate)
	s.session.AddHandler(s.onInteractionCreate)
}

// onReady is called when the bot successfully connects to Discord
func (s *BotService) onReady(session *discordgo.Session, ready *discordgo.Ready) {
	s.logger.Info("Bot is ready",
		"username", ready.User.Username,
		"guilds", len(ready.Guilds),
	)

	// Register commands now that bot is connected
	if err := s.registerCommands(); err != nil {
		s.logger.Error("Failed to register slash commands", "error", err)
	}

	if err := session.UpdateGameStatus(0, "Unfurling links"); err != nil {
		s.logger.Error("Failed to set bot status", "error", err)
	}
}
