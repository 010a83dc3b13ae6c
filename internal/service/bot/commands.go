package bot

import (
	"context"
	"errors"
	"fmt"
	"linkcard/internal/service/preview"

	"github.com/bwmarrin/discordgo"
)

// Command definitions
var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "preview",
		Description: "Show the link preview for a URL",
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "url",
				Description: "The http(s) URL to preview",
				Required:    true,
			},
		},
	},
}

// registerCommands registers slash commands with Discord
func (s *BotService) registerCommands() error {
	s.logger.Info("Registering slash commands...")

	// Register commands globally (takes up to 1 hour to propagate)
	_, err := s.session.ApplicationCommandBulkOverwrite(s.session.State.User.ID, "", commands)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	s.logger.Info("Slash commands registered successfully")
	return nil
}

// onInteractionCreate handles slash command interactions
func (s *BotService) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	command := interaction.ApplicationCommandData()
	s.logger.Debug("Received slash command",
		"command", command.Name,
		"guild_id", interaction.GuildID,
	)

	switch command.Name {
	case "preview":
		s.handlePreviewCommand(session, interaction, command)
	default:
		s.respondText(session, interaction, "Unknown command")
	}
}

// handlePreviewCommand defers the reply, since resolution can outlast
// Discord's three second response window, then edits in the result.
func (s *BotService) handlePreviewCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate, command discordgo.ApplicationCommandInteractionData) {
	rawURL := stringOption(command.Options, "url")
	if rawURL == "" {
		s.respondText(session, interaction, "Please provide a URL")
		return
	}

	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		s.logger.Error("Failed to defer interaction", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, lookupTimeout)
	defer cancel()

	edit := &discordgo.WebhookEdit{}
	res, err := s.lookup.Lookup(ctx, rawURL)
	switch {
	case errors.Is(err, preview.ErrInvalidInput):
		content := "That doesn't look like an http(s) URL"
		edit.Content = &content
	case err != nil:
		content := "Preview lookup timed out"
		edit.Content = &content
	default:
		if embed := buildEmbed(res.Metadata); embed != nil {
			embeds := []*discordgo.MessageEmbed{embed}
			edit.Embeds = &embeds
		} else {
			content := "No preview available for " + rawURL
			edit.Content = &content
		}
	}

	if _, err := session.InteractionResponseEdit(interaction.Interaction, edit); err != nil {
		s.logger.Error("Failed to edit interaction response", "error", err)
	}
}

func stringOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, option := range options {
		if option.Name == name && option.Type == discordgo.ApplicationCommandOptionString {
			if value, ok := option.Value.(string); ok {
				return value
			}
		}
	}
	return ""
}

func (s *BotService) respondText(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		s.logger.Error("Failed to respond to interaction", "error", err)
	}
}
