package worker

import (
	"context"
	"errors"
	"fmt"
	"linkcard/internal/domain"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// errBadPayload marks a job that can never succeed, however often it is retried
var errBadPayload = errors.New("invalid job payload")

// Resolver turns a URL into preview metadata
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*domain.PreviewMetadata, error)
}

// CacheWriter stores a resolved preview for ad hoc lookups
type CacheWriter interface {
	Store(ctx context.Context, rawURL string, metadata *domain.PreviewMetadata) error
}

// JobProcessor handles resolve_preview jobs
type JobProcessor struct {
	logger      *slog.Logger
	resolver    Resolver
	previewRepo domain.PreviewRepository
	cache       CacheWriter
	now         func() time.Time
}

// NewJobProcessor creates a job processor. cache may be nil.
func NewJobProcessor(
	logger *slog.Logger,
	resolver Resolver,
	previewRepo domain.PreviewRepository,
	cache CacheWriter,
) *JobProcessor {
	return &JobProcessor{
		logger:      logger,
		resolver:    resolver,
		previewRepo: previewRepo,
		cache:       cache,
		now:         time.Now,
	}
}

// parseResolvePayload extracts the preview ID and URL from a dequeued payload
func parseResolvePayload(payload map[string]interface{}) (uuid.UUID, string, error) {
	idStr, ok := payload["preview_id"].(string)
	if !ok {
		return uuid.Nil, "", fmt.Errorf("%w: missing preview_id", errBadPayload)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: preview_id: %v", errBadPayload, err)
	}

	rawURL, ok := payload["url"].(string)
	if !ok || rawURL == "" {
		return uuid.Nil, "", fmt.Errorf("%w: missing url", errBadPayload)
	}

	return id, rawURL, nil
}

// ProcessResolvePreview resolves the job's URL and stores the result on the
// preview record. Cancellation puts the record back to pending.
func (p *JobProcessor) ProcessResolvePreview(ctx context.Context, payload map[string]interface{}, logger *slog.Logger) error {
	previewID, rawURL, err := parseResolvePayload(payload)
	if err != nil {
		return err
	}

	logger = logger.With("preview_id", previewID, "url", rawURL)
	logger.Info("Processing resolve preview job")

	if err := p.previewRepo.UpdateStatus(ctx, previewID, domain.PreviewStatusProcessing, nil); err != nil {
		return fmt.Errorf("mark preview processing: %w", err)
	}

	metadata, err := p.resolver.Resolve(ctx, rawURL)
	if err != nil {
		// Status writes must survive the job context being cancelled
		bg := context.WithoutCancel(ctx)
		if ctx.Err() != nil {
			if uerr := p.previewRepo.UpdateStatus(bg, previewID, domain.PreviewStatusPending, nil); uerr != nil {
				logger.Error("Failed to reset preview after cancellation", "error", uerr)
			}
			return err
		}

		msg := err.Error()
		if uerr := p.previewRepo.UpdateStatus(bg, previewID, domain.PreviewStatusFailed, &msg); uerr != nil {
			logger.Error("Failed to mark preview failed", "error", uerr)
		}
		return err
	}

	record, err := p.previewRepo.GetByID(ctx, previewID)
	if err != nil {
		return fmt.Errorf("load preview: %w", err)
	}

	resolvedAt := p.now()
	record.Metadata = *metadata
	record.Status = domain.PreviewStatusComplete
	record.Error = nil
	record.ResolvedAt = &resolvedAt

	if err := p.previewRepo.Update(ctx, record); err != nil {
		return fmt.Errorf("store preview: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.Store(ctx, rawURL, metadata); err != nil {
			logger.Warn("Failed to cache resolved preview", "error", err)
		}
	}

	logger.Info("Preview resolved",
		"empty", metadata.IsEmpty(),
		"site_name", deref(metadata.SiteName),
	)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
