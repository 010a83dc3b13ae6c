package main

import (
	"context"
	"fmt"
	"linkcard/internal/pkg/urldetector"
	"linkcard/internal/service/submit"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// MessageSource pages through a channel's history, newest first
type MessageSource interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Submitter stores and queues one URL
type Submitter interface {
	Submit(ctx context.Context, rawURL string) (*submit.Result, error)
}

// Seeder fetches Discord messages and queues every link found in them
type Seeder struct {
	discord     MessageSource
	submitter   Submitter
	urlDetector *urldetector.Detector
	logger      *slog.Logger

	channelID string
	limit     int
	batchSize int
	beforeID  string
	afterID   string
	dryRun    bool

	// pause between history pages
	pageDelay time.Duration
}

// SeedingStats tracks statistics for the seeding process
type SeedingStats struct {
	MessagesProcessed int
	URLsDetected      int
	JobsQueued        int
	AlreadyStored     int
	Errors            int
}

// Run executes the seeding process
func (s *Seeder) Run(ctx context.Context) error {
	messages, err := s.fetchMessages(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	s.logger.Info("Fetched messages from Discord", "total_messages", len(messages))

	stats := s.processMessages(ctx, messages)

	s.logger.Info("Seeding completed",
		"messages_processed", stats.MessagesProcessed,
		"urls_detected", stats.URLsDetected,
		"jobs_queued", stats.JobsQueued,
		"already_stored", stats.AlreadyStored,
		"errors", stats.Errors,
	)
	return nil
}

// fetchMessages fetches messages from Discord with pagination
func (s *Seeder) fetchMessages(ctx context.Context) ([]*discordgo.Message, error) {
	var allMessages []*discordgo.Message
	beforeID := s.beforeID

	for {
		if err := ctx.Err(); err != nil {
			return allMessages, err
		}

		messages, err := s.discord.ChannelMessages(s.channelID, s.batchSize, beforeID, s.afterID, "")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		if len(messages) == 0 {
			break
		}

		s.logger.Debug("Fetched message batch",
			"batch_size", len(messages),
			"total_so_far", len(allMessages)+len(messages),
		)
		allMessages = append(allMessages, messages...)

		if s.limit > 0 && len(allMessages) >= s.limit {
			allMessages = allMessages[:s.limit]
			break
		}
		if len(messages) < s.batchSize {
			break
		}

		// Discord returns messages newest first
		beforeID = messages[len(messages)-1].ID

		if s.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return allMessages, ctx.Err()
			case <-time.After(s.pageDelay):
			}
		}
	}

	return allMessages, nil
}

// processMessages queues every link found in messages
func (s *Seeder) processMessages(ctx context.Context, messages []*discordgo.Message) *SeedingStats {
	stats := &SeedingStats{}

	for _, message := range messages {
		if ctx.Err() != nil {
			s.logger.Warn("Context cancelled, stopping message processing")
			return stats
		}

		stats.MessagesProcessed++

		if message.Author != nil && message.Author.Bot {
			continue
		}

		urls := s.urlDetector.DetectURLs(cleanMessageContent(message.Content))
		stats.URLsDetected += len(urls)

		for _, rawURL := range urls {
			if s.dryRun {
				s.logger.Info("[DRY RUN] Would queue preview",
					"url", rawURL,
					"message_id", message.ID,
				)
				stats.JobsQueued++
				continue
			}

			res, err := s.submitter.Submit(ctx, rawURL)
			if err != nil {
				s.logger.Error("Failed to queue URL",
					"error", err,
					"url", rawURL,
					"message_id", message.ID,
				)
				stats.Errors++
				continue
			}
			if res.JobID == "" {
				stats.AlreadyStored++
				continue
			}
			stats.JobsQueued++
		}
	}

	return stats
}

var (
	markdownLinkRegex = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	angleLinkRegex    = regexp.MustCompile(`<(https?://[^>\s]+)>`)
	invisibleChars    = strings.NewReplacer("\u200B", "", "\u200C", "", "\u200D", "", "\uFEFF", "")
)

// cleanMessageContent unwraps markdown and suppressed links so the detector
// sees bare URLs. A backfill wants every link, including ones the author
// wrapped in <...>.
func cleanMessageContent(content string) string {
	cleaned := markdownLinkRegex.ReplaceAllString(content, "$2")
	cleaned = angleLinkRegex.ReplaceAllString(cleaned, "$1")
	cleaned = invisibleChars.Replace(cleaned)
	return strings.TrimSpace(cleaned)
}
