package urldetector

import (
	"regexp"
	"strings"
)

// urlPattern matches http(s) links in free text. Angle brackets are excluded so
// that Discord's <https://...> embed suppression can be detected around a match.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"'` + "`" + `]+`)

// Detector finds links in chat messages
type Detector struct {
	// MaxURLs caps how many links DetectURLs returns; zero means no cap
	MaxURLs int
}

// New creates a detector returning at most maxURLs links per message
func New(maxURLs int) *Detector {
	return &Detector{MaxURLs: maxURLs}
}

// DetectURLs returns the distinct links in content in the order they appear.
// Links wrapped in <...> are skipped: the author asked for no preview.
func (d *Detector) DetectURLs(content string) []string {
	var urls []string
	seen := make(map[string]bool)

	for _, loc := range urlPattern.FindAllStringIndex(content, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && content[start-1] == '<' && end < len(content) && content[end] == '>' {
			continue
		}

		link := fixMalformedQueryString(cleanTrailingPunctuation(content[start:end]))
		if !hasHost(link) || seen[link] {
			continue
		}
		seen[link] = true
		urls = append(urls, link)

		if d.MaxURLs > 0 && len(urls) == d.MaxURLs {
			break
		}
	}

	return urls
}

// hasHost rejects bare scheme matches such as "https://" or "http://."
func hasHost(link string) bool {
	rest := link[strings.Index(link, "://")+3:]
	host, _, _ := strings.Cut(rest, "/")
	return strings.Trim(host, ".") != ""
}

// fixMalformedQueryString repairs links whose query parameters were joined with
// extra '?' instead of '&', as happens when a share link is pasted after
// another query: "watch?v=ID?si=X" becomes "watch?v=ID&si=X".
func fixMalformedQueryString(link string) string {
	base, query, ok := strings.Cut(link, "?")
	if !ok {
		return link
	}

	fragment := ""
	if i := strings.Index(query, "#"); i >= 0 {
		query, fragment = query[:i], query[i:]
	}

	return base + "?" + strings.ReplaceAll(query, "?", "&") + fragment
}
