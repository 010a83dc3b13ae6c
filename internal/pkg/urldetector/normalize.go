package urldetector

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams never change what a page shows and are dropped from canonical URLs
var trackingParams = []string{
	// Google Analytics
	"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
	// Share and click IDs
	"si", "fbclid", "gclid", "msclkid", "igshid",
	// Generic referrers
	"ref", "source",
}

// NormalizeURL creates a canonical form of a URL for cache keys and storage.
// It lowercases the host, removes a leading "www.", drops tracking parameters,
// the fragment and a default port, and sorts the remaining query.
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		// Bare domains like "example.com/page" are assumed to be https
		if strings.Contains(rawURL, "://") || !strings.Contains(rawURL, ".") {
			return "", fmt.Errorf("invalid URL: not an http(s) link")
		}
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(fixMalformedQueryString(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid URL: no host found")
	}

	return GetCanonicalURL(u), nil
}

// cleanTrailingPunctuation removes trailing punctuation from a URL intelligently.
// It preserves closing parentheses if they're balanced (for Wikipedia-style URLs).
func cleanTrailingPunctuation(urlStr string) string {
	for {
		trimmed := strings.TrimRight(urlStr, ".,!?;:\"'")
		if strings.HasSuffix(trimmed, ")") && strings.Count(trimmed, "(") < strings.Count(trimmed, ")") {
			trimmed = strings.TrimSuffix(trimmed, ")")
		}
		if trimmed == urlStr {
			return urlStr
		}
		urlStr = trimmed
	}
}

// GetCanonicalURL creates a canonical URL from an already-parsed URL object.
// The argument is not modified.
func GetCanonicalURL(u *url.URL) string {
	canonical := *u
	canonical.User = nil
	canonical.Fragment = ""
	canonical.RawFragment = ""
	canonical.Scheme = strings.ToLower(canonical.Scheme)

	host := strings.TrimSuffix(strings.ToLower(canonical.Hostname()), ".")
	host = strings.TrimPrefix(host, "www.")
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := canonical.Port()
	if (canonical.Scheme == "https" && port == "443") || (canonical.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	canonical.Host = host

	if canonical.Path == "" {
		canonical.Path = "/"
		canonical.RawPath = ""
	}

	q := canonical.Query()
	for _, param := range trackingParams {
		q.Del(param)
	}
	canonical.RawQuery = q.Encode()

	return canonical.String()
}
