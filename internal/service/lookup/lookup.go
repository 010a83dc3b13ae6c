package lookup

import (
	"context"
	"fmt"
	"linkcard/internal/domain"
	"linkcard/internal/pkg/urldetector"
	"linkcard/internal/service/preview"
	"log/slog"
	"strings"
	"time"
)

// Resolver is the part of the preview engine lookups depend on
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*domain.PreviewMetadata, error)
}

// emptyTTL bounds how long a preview with no fields is cached, so a page that
// was briefly down is retried soon.
const emptyTTL = 10 * time.Minute

// Service answers ad hoc preview requests, consulting the cache before
// resolving. The cache key is the canonical URL; the engine always sees the
// URL as the caller wrote it.
type Service struct {
	resolver Resolver
	cache    domain.PreviewCache
	ttl      time.Duration
	logger   *slog.Logger
}

// New creates a lookup service. cache may be nil to always resolve.
func New(resolver Resolver, cache domain.PreviewCache, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		resolver: resolver,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
	}
}

// Result is a resolved preview and whether it came from the cache
type Result struct {
	Metadata *domain.PreviewMetadata
	Cached   bool
}

// Lookup returns the preview for rawURL, trimmed of surrounding whitespace. Invalid input is reported as
// preview.ErrInvalidInput before the cache is touched; cache failures are
// logged and otherwise ignored.
func (s *Service) Lookup(ctx context.Context, rawURL string) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if _, err := preview.Validate(rawURL); err != nil {
		return nil, err
	}

	key, err := CacheKey(rawURL)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("url", rawURL)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("Cache read failed", "error", err)
		} else if cached != nil {
			logger.Debug("Preview served from cache")
			return &Result{Metadata: cached, Cached: true}, nil
		}
	}

	metadata, err := s.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, metadata, s.ttlFor(metadata)); err != nil {
			logger.Warn("Cache write failed", "error", err)
		}
	}

	return &Result{Metadata: metadata}, nil
}

// Store caches a preview resolved elsewhere, such as by the worker
func (s *Service) Store(ctx context.Context, rawURL string, metadata *domain.PreviewMetadata) error {
	if s.cache == nil {
		return nil
	}
	key, err := CacheKey(rawURL)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, metadata, s.ttlFor(metadata))
}

func (s *Service) ttlFor(metadata *domain.PreviewMetadata) time.Duration {
	ttl := s.ttl
	if metadata.IsEmpty() && (ttl == 0 || ttl > emptyTTL) {
		ttl = emptyTTL
	}
	return ttl
}

// Invalidate drops the cached preview for rawURL
func (s *Service) Invalidate(ctx context.Context, rawURL string) error {
	if s.cache == nil {
		return nil
	}
	key, err := CacheKey(rawURL)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, key)
}

// CacheKey is the canonical form of an already validated URL
func CacheKey(rawURL string) (string, error) {
	key, err := urldetector.NormalizeURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", preview.ErrInvalidInput, err)
	}
	return key, nil
}
