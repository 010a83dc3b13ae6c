package main

import (
	"context"
	"errors"
	"fmt"
	"linkcard/internal/domain"
	"linkcard/internal/pkg/urldetector"
	"linkcard/internal/service/submit"
	"log/slog"
	"os"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestCleanMessageContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "look https://example.com/a", want: "look https://example.com/a"},
		{name: "markdown link", in: "see [the post](https://example.com/post) here", want: "see https://example.com/post here"},
		{name: "suppressed embed", in: "quiet <https://example.com/q>", want: "quiet https://example.com/q"},
		{name: "zero width", in: "https://exa\u200Bmple.com/", want: "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanMessageContent(tt.in); got != tt.want {
				t.Errorf("cleanMessageContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

// pagedSource serves a fixed history newest first, honouring beforeID
type pagedSource struct {
	messages []*discordgo.Message
	calls    int
}

func (p *pagedSource) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	p.calls++
	start := 0
	if beforeID != "" {
		for i, m := range p.messages {
			if m.ID == beforeID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(p.messages) {
		end = len(p.messages)
	}
	return p.messages[start:end], nil
}

type recordingSubmitter struct {
	urls  []string
	known map[string]bool
	fail  map[string]bool
}

func (r *recordingSubmitter) Submit(ctx context.Context, rawURL string) (*submit.Result, error) {
	r.urls = append(r.urls, rawURL)
	if r.fail[rawURL] {
		return nil, errors.New("queue unavailable")
	}
	res := &submit.Result{Preview: &domain.Preview{URL: rawURL}}
	if !r.known[rawURL] {
		res.JobID = "job"
	}
	return res, nil
}

func history(n int) []*discordgo.Message {
	var msgs []*discordgo.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs, &discordgo.Message{
			ID:      fmt.Sprintf("%d", 1000-i),
			Content: fmt.Sprintf("check https://example.com/%d", i),
			Author:  &discordgo.User{ID: "u1"},
		})
	}
	return msgs
}

func TestSeederRun(t *testing.T) {
	msgs := history(5)
	msgs = append(msgs,
		&discordgo.Message{ID: "1", Content: "bot says https://example.com/bot", Author: &discordgo.User{Bot: true}},
		&discordgo.Message{ID: "0", Content: "no links here", Author: &discordgo.User{ID: "u2"}},
	)
	source := &pagedSource{messages: msgs}
	sub := &recordingSubmitter{
		known: map[string]bool{"https://example.com/1": true},
		fail:  map[string]bool{"https://example.com/2": true},
	}

	s := &Seeder{
		discord:     source,
		submitter:   sub,
		urlDetector: urldetector.New(0),
		logger:      createTestLogger(),
		channelID:   "c1",
		batchSize:   3,
	}

	fetched, err := s.fetchMessages(context.Background())
	if err != nil {
		t.Fatalf("fetchMessages() error = %v", err)
	}
	if len(fetched) != len(msgs) {
		t.Fatalf("fetched %d messages, want %d", len(fetched), len(msgs))
	}
	if source.calls != 3 {
		t.Errorf("made %d history calls, want 3", source.calls)
	}

	stats := s.processMessages(context.Background(), fetched)
	if stats.MessagesProcessed != 7 {
		t.Errorf("MessagesProcessed = %d, want 7", stats.MessagesProcessed)
	}
	if stats.URLsDetected != 5 {
		t.Errorf("URLsDetected = %d, want 5 (bot messages skipped)", stats.URLsDetected)
	}
	if stats.JobsQueued != 3 || stats.AlreadyStored != 1 || stats.Errors != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSeederLimitAndDryRun(t *testing.T) {
	source := &pagedSource{messages: history(10)}
	sub := &recordingSubmitter{}

	s := &Seeder{
		discord:     source,
		submitter:   sub,
		urlDetector: urldetector.New(0),
		logger:      createTestLogger(),
		channelID:   "c1",
		batchSize:   4,
		limit:       6,
		dryRun:      true,
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sub.urls) != 0 {
		t.Errorf("dry run submitted %d URLs", len(sub.urls))
	}

	fetched, _ := s.fetchMessages(context.Background())
	if len(fetched) != 6 {
		t.Errorf("fetched %d messages, want limit of 6", len(fetched))
	}
}
