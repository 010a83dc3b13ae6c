package preview

import (
	"net/url"
	"strings"
)

// Kind selects which specialised strategy, if any, applies to a URL
type Kind int

const (
	KindNone Kind = iota
	KindStructuredEmbed
	KindHeuristic
)

// Subkind is the page shape on the heuristic platform
type Subkind int

const (
	SubkindNone Subkind = iota
	SubkindClip
	SubkindVod
	SubkindChannel
)

func (s Subkind) String() string {
	switch s {
	case SubkindClip:
		return "clip"
	case SubkindVod:
		return "vod"
	case SubkindChannel:
		return "channel"
	default:
		return "none"
	}
}

// Match is the classifier's verdict for a URL
type Match struct {
	Kind Kind

	// Provider is set for KindStructuredEmbed
	Provider *EmbedProvider

	// Heuristic platform details taken from the path
	Subkind Subkind
	Channel string
	ID      string
}

// String is used as a log value
func (m Match) String() string {
	switch m.Kind {
	case KindStructuredEmbed:
		if m.Provider != nil {
			return "embed:" + m.Provider.Name
		}
		return "embed"
	case KindHeuristic:
		return "twitch:" + m.Subkind.String()
	default:
		return "generic"
	}
}

// Classifier maps a validated URL to a Match without touching the network
type Classifier struct {
	registry *EmbedRegistry
}

// NewClassifier creates a classifier backed by an embed provider registry
func NewClassifier(registry *EmbedRegistry) *Classifier {
	return &Classifier{registry: registry}
}

// Classify inspects u's host, and for Twitch its path
func (c *Classifier) Classify(u *url.URL) Match {
	if c.registry != nil {
		if provider := c.registry.Match(u); provider != nil {
			return Match{Kind: KindStructuredEmbed, Provider: provider}
		}
	}

	if match, ok := classifyTwitch(u); ok {
		return match
	}

	return Match{Kind: KindNone}
}

// pathSegments splits a URL path into its non-empty segments
func pathSegments(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
