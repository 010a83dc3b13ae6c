package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"linkcard/internal/domain"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const previewKeyPrefix = "preview:" // preview:canonical_url

// PreviewCache implements domain.PreviewCache with JSON values under preview:<url>
type PreviewCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewPreviewCache(client *redis.Client, logger *slog.Logger) *PreviewCache {
	return &PreviewCache{client: client, logger: logger}
}

// Get returns (nil, nil) on a miss. An undecodable entry is dropped and
// reported as a miss.
func (c *PreviewCache) Get(ctx context.Context, url string) (*domain.PreviewMetadata, error) {
	key := previewKeyPrefix + url

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached preview: %w", err)
	}

	var metadata domain.PreviewMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		c.logger.Warn("Dropping corrupt cache entry", "key", key, "error", err)
		c.client.Del(ctx, key)
		return nil, nil
	}

	return &metadata, nil
}

// Set stores metadata for ttl; a ttl of zero keeps it until evicted
func (c *PreviewCache) Set(ctx context.Context, url string, metadata *domain.PreviewMetadata, ttl time.Duration) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal preview: %w", err)
	}

	if err := c.client.Set(ctx, previewKeyPrefix+url, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache preview: %w", err)
	}
	return nil
}

func (c *PreviewCache) Delete(ctx context.Context, url string) error {
	if err := c.client.Del(ctx, previewKeyPrefix+url).Err(); err != nil {
		return fmt.Errorf("failed to delete cached preview: %w", err)
	}
	return nil
}
