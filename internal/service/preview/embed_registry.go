package preview

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

//go:embed embed_providers.json
var embedProvidersJSON []byte

// EmbedProvider is a platform with a structured embed (oEmbed) endpoint
type EmbedProvider struct {
	Name     string
	SiteName string
	Endpoint string
	Hosts    []*regexp.Regexp // Compiled host patterns, matched case-insensitively
}

// EmbedRegistry matches hostnames to embed providers, in file order
type EmbedRegistry struct {
	providers []*EmbedProvider
}

// rawProvider matches the JSON structure of embed_providers.json
type rawProvider struct {
	ProviderName string   `json:"provider_name"`
	SiteName     string   `json:"site_name"`
	Endpoint     string   `json:"endpoint"`
	Hosts        []string `json:"hosts"`
}

// NewEmbedRegistry loads the built-in provider table
func NewEmbedRegistry() (*EmbedRegistry, error) {
	return NewEmbedRegistryFromJSON(embedProvidersJSON)
}

// NewEmbedRegistryFromJSON builds a registry from a provider table
func NewEmbedRegistryFromJSON(data []byte) (*EmbedRegistry, error) {
	var rawProviders []rawProvider
	if err := json.Unmarshal(data, &rawProviders); err != nil {
		return nil, fmt.Errorf("failed to parse embed providers: %w", err)
	}

	registry := &EmbedRegistry{
		providers: make([]*EmbedProvider, 0, len(rawProviders)),
	}

	for _, raw := range rawProviders {
		if raw.Endpoint == "" || len(raw.Hosts) == 0 {
			continue
		}

		provider := &EmbedProvider{
			Name:     raw.ProviderName,
			SiteName: raw.SiteName,
			Endpoint: raw.Endpoint,
			Hosts:    make([]*regexp.Regexp, 0, len(raw.Hosts)),
		}
		if provider.SiteName == "" {
			provider.SiteName = provider.Name
		}

		for _, host := range raw.Hosts {
			regex, err := regexp.Compile(hostToRegex(host))
			if err != nil {
				continue
			}
			provider.Hosts = append(provider.Hosts, regex)
		}

		if len(provider.Hosts) > 0 {
			registry.providers = append(registry.providers, provider)
		}
	}

	return registry, nil
}

// Match finds the provider serving u's host, nil when there is none
func (r *EmbedRegistry) Match(u *url.URL) *EmbedProvider {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for _, provider := range r.providers {
		for _, pattern := range provider.Hosts {
			if pattern.MatchString(host) {
				return provider
			}
		}
	}
	return nil
}

// hostToRegex converts a host pattern to an anchored regex.
// "*.youtube.com" matches any single or multi-level subdomain of youtube.com
// but not youtube.com itself.
func hostToRegex(host string) string {
	pattern := regexp.QuoteMeta(strings.ToLower(host))
	pattern = strings.ReplaceAll(pattern, `\*`, `[a-z0-9.-]+`)
	return "^" + pattern + "$"
}

// Count returns the total number of registered providers
func (r *EmbedRegistry) Count() int {
	return len(r.providers)
}

// Provider returns a provider by name (case-sensitive)
func (r *EmbedRegistry) Provider(name string) *EmbedProvider {
	for _, provider := range r.providers {
		if provider.Name == name {
			return provider
		}
	}
	return nil
}
