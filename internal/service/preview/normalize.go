package preview

import (
	"linkcard/internal/domain"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// normalizer tidies strategy output: URL fields become absolute https URLs
// and text fields lose stray whitespace. Text is plain, so a literal "<" in a
// title survives and renderers escape on output.
type normalizer struct{}

func newNormalizer() *normalizer {
	return &normalizer{}
}

var markupPolicy = bluemonday.StrictPolicy()

// stripMarkup turns an HTML fragment into plain text. Only fields documented
// to carry markup go through it.
func stripMarkup(fragment string) string {
	return html.UnescapeString(markupPolicy.Sanitize(fragment))
}

// normalize returns a copy of m. base is the URL relative references resolve against.
func (n *normalizer) normalize(base *url.URL, m *domain.PreviewMetadata) *domain.PreviewMetadata {
	out := &domain.PreviewMetadata{
		URL:         m.URL,
		Title:       n.text(m.Title),
		Description: n.text(m.Description),
		SiteName:    n.text(m.SiteName),
		Image:       absoluteHTTPS(base, m.Image),
		Icon:        absoluteHTTPS(base, m.Icon),
	}

	if out.Image != nil && m.ImageWidth != nil && m.ImageHeight != nil &&
		*m.ImageWidth > 0 && *m.ImageHeight > 0 {
		w, h := *m.ImageWidth, *m.ImageHeight
		out.ImageWidth, out.ImageHeight = &w, &h
	}

	return out
}

func (n *normalizer) text(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := strings.Join(strings.Fields(*value), " ")
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

func absoluteHTTPS(base *url.URL, value *string) *string {
	if value == nil {
		return nil
	}
	resolved, ok := resolveImageURL(base, *value)
	if !ok {
		return nil
	}
	return &resolved
}

// resolveImageURL resolves ref against base, covering protocol-relative,
// path-relative and absolute forms, then upgrades http to https. The upgrade
// is not checked against the origin. Anything that does not end up as an
// http(s) URL with a host is rejected.
func resolveImageURL(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	resolved := parsed
	if base != nil {
		resolved = base.ResolveReference(parsed)
	}

	switch strings.ToLower(resolved.Scheme) {
	case "https":
	case "http":
		resolved.Scheme = "https"
	default:
		return "", false
	}
	resolved.Scheme = strings.ToLower(resolved.Scheme)

	if resolved.Host == "" {
		return "", false
	}

	return resolved.String(), true
}

// stringPtr returns nil for empty strings
func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// metadata converts chain output into an unnormalized preview for pageURL
func (e extracted) metadata(pageURL string) *domain.PreviewMetadata {
	return &domain.PreviewMetadata{
		URL:         pageURL,
		Title:       stringPtr(e.title),
		Description: stringPtr(e.description),
		Image:       stringPtr(e.image),
		ImageWidth:  e.imageWidth,
		ImageHeight: e.imageHeight,
		Icon:        stringPtr(e.icon),
		SiteName:    stringPtr(e.siteName),
	}
}
