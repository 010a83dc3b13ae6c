package preview

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const twitchSiteName = "Twitch"

// twitchCategories labels each page shape in synthesized titles
var twitchCategories = map[Subkind]string{
	SubkindClip:    "Twitch Clip",
	SubkindVod:     "Twitch VOD",
	SubkindChannel: "Twitch Stream",
}

// reservedTwitchPaths are first path segments that are site sections, not channels
var reservedTwitchPaths = map[string]bool{
	"directory":     true,
	"downloads":     true,
	"drops":         true,
	"friends":       true,
	"inventory":     true,
	"jobs":          true,
	"login":         true,
	"messages":      true,
	"p":             true,
	"payments":      true,
	"search":        true,
	"settings":      true,
	"signup":        true,
	"subscriptions": true,
	"turbo":         true,
	"wallet":        true,
}

// classifyTwitch derives the page shape from host and path:
//
//	clips.twitch.tv/<slug>            clip
//	twitch.tv/<channel>/clip/<slug>   clip
//	twitch.tv/videos/<id>             vod
//	twitch.tv/<channel>/video/<id>    vod
//	twitch.tv/<channel>               channel
func classifyTwitch(u *url.URL) (Match, bool) {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	segments := pathSegments(u.Path)

	switch host {
	case "clips.twitch.tv":
		match := Match{Kind: KindHeuristic, Subkind: SubkindClip}
		if len(segments) > 0 {
			match.ID = segments[0]
		}
		if match.ID == "embed" {
			match.ID = u.Query().Get("clip")
		}
		return match, true
	case "twitch.tv", "www.twitch.tv", "m.twitch.tv":
	default:
		return Match{}, false
	}

	if len(segments) == 0 {
		return Match{}, false
	}

	first := strings.ToLower(segments[0])
	if first == "videos" {
		match := Match{Kind: KindHeuristic, Subkind: SubkindVod}
		if len(segments) > 1 {
			match.ID = segments[1]
		}
		return match, true
	}
	if reservedTwitchPaths[first] {
		return Match{}, false
	}

	match := Match{Kind: KindHeuristic, Subkind: SubkindChannel, Channel: segments[0]}
	if len(segments) >= 3 {
		switch strings.ToLower(segments[1]) {
		case "clip":
			match.Subkind, match.ID = SubkindClip, segments[2]
		case "video", "v":
			match.Subkind, match.ID = SubkindVod, segments[2]
		}
	}
	return match, true
}

// twitchResolver scrapes Twitch pages, whose markup is mostly rendered
// client-side, and synthesizes a title when the page carries none.
type twitchResolver struct {
	fetcher   *fetcher
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

func (r *twitchResolver) name() string { return "twitch" }

func (r *twitchResolver) applies(match Match) bool {
	return match.Kind == KindHeuristic
}

func (r *twitchResolver) resolve(ctx context.Context, target *url.URL, match Match) (*resolution, error) {
	var (
		fields extracted
		base   = target
	)
	err := withDeadline(ctx, r.timeout, func(ctx context.Context) error {
		result, err := r.fetcher.get(ctx, fetchRequest{
			url:       target.String(),
			accept:    htmlAccept,
			userAgent: r.userAgent,
		})
		if err != nil {
			return err
		}
		if !isHTMLContentType(result.contentType) {
			return fmt.Errorf("%w: content type %q", errUpstreamMalformed, result.contentType)
		}
		doc, err := parseDocument(result.body)
		if err != nil {
			return err
		}
		fields = extractFields(doc)
		base = result.finalURL
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("twitch %s: %w", match.Subkind, err)
	}

	// A named streamer is enough to build a title from
	if fields.title == "" && fields.image == "" && fields.actor == "" {
		return nil, fmt.Errorf("twitch %s: %w: no title, image or streamer", match.Subkind, errUpstreamMalformed)
	}

	if fields.title == "" {
		fields.title = synthesizeTwitchTitle(match, fields.actor)
		r.logger.Debug("Synthesized Twitch title",
			"subkind", match.Subkind.String(),
			"title", fields.title,
		)
	}

	metadata := fields.metadata(target.String())
	metadata.SiteName = stringPtr(twitchSiteName)

	return &resolution{metadata: metadata, base: base}, nil
}

// synthesizeTwitchTitle picks, in order: the streamer named by the page,
// a title derived from the path, the bare category label.
func synthesizeTwitchTitle(match Match, actor string) string {
	if title := actorTitle(match.Subkind, actor); title != "" {
		return title
	}
	if title := pathTitle(match); title != "" {
		return title
	}
	return categoryTitle(match.Subkind)
}

// actorTitle formats "<Category> - <name>"
func actorTitle(subkind Subkind, actor string) string {
	actor = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(actor), "@"))
	category := twitchCategories[subkind]
	if actor == "" || category == "" {
		return ""
	}
	return category + " - " + actor
}

// pathTitle derives a title from the path segment next to the category keyword
func pathTitle(match Match) string {
	switch match.Subkind {
	case SubkindClip:
		if match.Channel != "" {
			return twitchCategories[SubkindClip] + " - " + match.Channel
		}
	case SubkindVod:
		if match.ID != "" {
			return twitchCategories[SubkindVod] + " #" + match.ID
		}
	case SubkindChannel:
		if match.Channel != "" {
			return match.Channel + " - " + twitchCategories[SubkindChannel]
		}
	}
	return ""
}

// categoryTitle is the last resort label
func categoryTitle(subkind Subkind) string {
	if category, ok := twitchCategories[subkind]; ok {
		return category
	}
	return twitchSiteName
}
