package bot

import (
	"context"
	"linkcard/internal/domain"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
)

// Discord embed limits, and a shorter cap on descriptions to keep replies compact
const (
	maxTitleLen       = 256
	maxDescriptionLen = 350
	maxFooterLen      = 2048

	// Images at least this wide are shown full size instead of as a thumbnail
	largeImageWidth = 400

	embedColor = 0x5865f2
)

// onMessageCreate handles new Discord messages
func (s *BotService) onMessageCreate(session *discordgo.Session, message *discordgo.MessageCreate) {
	if message.Author == nil || message.Author.Bot {
		return
	}

	urls := s.urlDetector.DetectURLs(message.Content)
	if len(urls) == 0 {
		return
	}

	logger := s.logger.With(
		"message_id", message.ID,
		"channel_id", message.ChannelID,
		"guild_id", message.GuildID,
	)
	logger.Debug("Detected URLs in message", "urls", urls)

	embeds := s.resolveEmbeds(urls)
	if len(embeds) == 0 {
		logger.Debug("No previews worth sending")
		return
	}

	_, err := session.ChannelMessageSendComplex(message.ChannelID, &discordgo.MessageSend{
		Embeds: embeds,
		Reference: &discordgo.MessageReference{
			MessageID: message.ID,
			ChannelID: message.ChannelID,
			GuildID:   message.GuildID,
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	})
	if err != nil {
		logger.Error("Failed to send previews", "error", err)
		return
	}

	logger.Info("Sent link previews", "count", len(embeds))
}

// resolveEmbeds looks up every URL concurrently and returns embeds in input
// order, skipping links with nothing to show.
func (s *BotService) resolveEmbeds(urls []string) []*discordgo.MessageEmbed {
	ctx, cancel := context.WithTimeout(s.ctx, lookupTimeout)
	defer cancel()

	results := make([]*discordgo.MessageEmbed, len(urls))

	var g errgroup.Group
	for i, rawURL := range urls {
		g.Go(func() error {
			res, err := s.lookup.Lookup(ctx, rawURL)
			if err != nil {
				s.logger.Debug("Skipping URL", "url", rawURL, "error", err)
				return nil
			}
			results[i] = buildEmbed(res.Metadata)
			return nil
		})
	}
	g.Wait()

	embeds := make([]*discordgo.MessageEmbed, 0, len(results))
	for _, e := range results {
		if e != nil {
			embeds = append(embeds, e)
		}
	}
	return embeds
}

// buildEmbed renders a preview as a Discord embed. It returns nil when the
// preview has neither a title nor a description.
func buildEmbed(m *domain.PreviewMetadata) *discordgo.MessageEmbed {
	if m == nil || (m.Title == nil && m.Description == nil) {
		return nil
	}

	embed := &discordgo.MessageEmbed{
		URL:   m.URL,
		Color: embedColor,
	}
	if m.Title != nil {
		embed.Title = truncate(*m.Title, maxTitleLen)
	}
	if m.Description != nil {
		embed.Description = truncate(*m.Description, maxDescriptionLen)
	}

	if m.Image != nil {
		if m.ImageWidth != nil && *m.ImageWidth >= largeImageWidth {
			embed.Image = &discordgo.MessageEmbedImage{URL: *m.Image}
		} else {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: *m.Image}
		}
	}

	if m.SiteName != nil {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: truncate(*m.SiteName, maxFooterLen)}
		if m.Icon != nil {
			embed.Footer.IconURL = *m.Icon
		}
	}

	return embed
}

// truncate shortens s to at most max runes, ending with an ellipsis when cut
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
