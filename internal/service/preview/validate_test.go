package preview

import (
	"errors"
	"testing"
)

func TestValidateRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "whitespace", input: "   "},
		{name: "missing scheme", input: "example.com/article"},
		{name: "host with port, no scheme", input: "localhost:8080/path"},
		{name: "ftp scheme", input: "ftp://example.com/file"},
		{name: "javascript scheme", input: "javascript:alert(1)"},
		{name: "mailto", input: "mailto:someone@example.com"},
		{name: "missing host", input: "https://"},
		{name: "leading space", input: " https://example.com/page"},
		{name: "trailing space", input: "https://example.com /page"},
		{name: "single slash", input: "http:/example.com"},
		{name: "relative path", input: "/just/a/path"},
		{name: "protocol relative", input: "//example.com/page"},
		{name: "bad escape", input: "https://example.com/%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Validate(tt.input)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Validate(%q) error = %v, want ErrInvalidInput", tt.input, err)
			}
			if u != nil {
				t.Errorf("Validate(%q) returned URL %v alongside an error", tt.input, u)
			}
		})
	}
}

func TestValidateAcceptsHTTPURLs(t *testing.T) {
	tests := []struct {
		input    string
		wantHost string
	}{
		{input: "https://example.com/page", wantHost: "example.com"},
		{input: "http://example.com", wantHost: "example.com"},
		{input: "https://www.twitch.tv/shroud", wantHost: "www.twitch.tv"},
		{input: "https://example.com:8443/a?b=c#d", wantHost: "example.com:8443"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			u, err := Validate(tt.input)
			if err != nil {
				t.Fatalf("Validate(%q) error = %v", tt.input, err)
			}
			if u.Host != tt.wantHost {
				t.Errorf("Validate(%q).Host = %q, want %q", tt.input, u.Host, tt.wantHost)
			}
		})
	}
}
