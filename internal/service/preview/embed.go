package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"linkcard/internal/domain"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// embedResolver reads a platform's oEmbed endpoint instead of scraping HTML
type embedResolver struct {
	fetcher *fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// embedResponse is the subset of the oEmbed response we use.
// See: https://oembed.com/#section2.3
type embedResponse struct {
	Type            string      `json:"type"`
	Version         interface{} `json:"version"` // some providers send a number instead of "1.0"
	Title           string      `json:"title"`
	AuthorName      string      `json:"author_name"`
	ProviderName    string      `json:"provider_name"`
	ThumbnailURL    string      `json:"thumbnail_url"`
	ThumbnailWidth  int         `json:"thumbnail_width"`
	ThumbnailHeight int         `json:"thumbnail_height"`
	Description     string      `json:"description"` // nonstandard HTML, some providers include it
}

func (r *embedResolver) name() string { return "structured_embed" }

func (r *embedResolver) applies(match Match) bool {
	return match.Kind == KindStructuredEmbed && match.Provider != nil
}

func (r *embedResolver) resolve(ctx context.Context, target *url.URL, match Match) (*resolution, error) {
	provider := match.Provider

	embedURL, err := buildEmbedURL(provider.Endpoint, target.String())
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Requesting structured embed",
		"provider", provider.Name,
		"embed_url", embedURL,
	)

	var resp embedResponse
	err = withDeadline(ctx, r.timeout, func(ctx context.Context) error {
		result, err := r.fetcher.get(ctx, fetchRequest{url: embedURL, accept: jsonAccept})
		if err != nil {
			return err
		}
		if err := json.Unmarshal(result.body, &resp); err != nil {
			return fmt.Errorf("%w: decode embed JSON: %v", errUpstreamMalformed, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s embed: %w", provider.Name, err)
	}

	if strings.TrimSpace(resp.Title) == "" && strings.TrimSpace(resp.ThumbnailURL) == "" {
		return nil, fmt.Errorf("%s embed: %w: no title or thumbnail", provider.Name, errUpstreamMalformed)
	}

	return &resolution{
		metadata: embedToMetadata(&resp, provider, target.String()),
		base:     target,
	}, nil
}

// buildEmbedURL constructs the endpoint URL with the target and a JSON format hint
func buildEmbedURL(endpoint, resourceURL string) (string, error) {
	// Some endpoints carry a {format} placeholder
	endpoint = strings.ReplaceAll(endpoint, "{format}", "json")

	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL: %w", err)
	}

	query := baseURL.Query()
	query.Set("url", resourceURL)
	query.Set("format", "json")
	baseURL.RawQuery = query.Encode()

	return baseURL.String(), nil
}

// embedToMetadata maps an oEmbed response onto a preview. Titles arrive
// HTML-escaped from several providers; descriptions arrive as markup.
func embedToMetadata(resp *embedResponse, provider *EmbedProvider, pageURL string) *domain.PreviewMetadata {
	metadata := &domain.PreviewMetadata{
		URL:      pageURL,
		Title:    stringPtr(strings.TrimSpace(html.UnescapeString(resp.Title))),
		Image:    stringPtr(strings.TrimSpace(resp.ThumbnailURL)),
		SiteName: stringPtr(provider.SiteName),
	}

	switch {
	case resp.Description != "":
		metadata.Description = stringPtr(stripMarkup(resp.Description))
	case resp.AuthorName != "":
		metadata.Description = stringPtr("By " + html.UnescapeString(resp.AuthorName))
	}

	if metadata.Image != nil && resp.ThumbnailWidth > 0 && resp.ThumbnailHeight > 0 {
		w, h := resp.ThumbnailWidth, resp.ThumbnailHeight
		metadata.ImageWidth, metadata.ImageHeight = &w, &h
	}

	return metadata
}
