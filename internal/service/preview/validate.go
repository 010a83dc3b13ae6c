package preview

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate parses raw as an absolute http or https URL.
// No scheme is inferred and surrounding whitespace is not trimmed:
// "example.com/article" and " https://example.com" are both rejected.
func Validate(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: URL is not absolute", ErrInvalidInput)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidInput)
	}

	return u, nil
}
