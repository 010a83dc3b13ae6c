package submit

import (
	"context"
	"errors"
	"fmt"
	"linkcard/internal/domain"
	"linkcard/internal/service/lookup"
	"linkcard/internal/service/preview"
	"log/slog"
	"strings"
	"time"
)

// Service stores URLs as preview records and queues them for the worker
type Service struct {
	previewRepo domain.PreviewRepository
	queueRepo   domain.QueueRepository
	staleAfter  time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a submit service. Completed records older than staleAfter are
// resolved again when resubmitted.
func New(previewRepo domain.PreviewRepository, queueRepo domain.QueueRepository, staleAfter time.Duration, logger *slog.Logger) *Service {
	return &Service{
		previewRepo: previewRepo,
		queueRepo:   queueRepo,
		staleAfter:  staleAfter,
		logger:      logger,
		now:         time.Now,
	}
}

// Result describes what Submit did with a URL
type Result struct {
	Preview *domain.Preview

	// Fresh is set when a completed, recent record already existed
	Fresh bool

	// JobID is empty unless a job was enqueued by this call
	JobID string
}

// Submit records rawURL under its canonical form and enqueues a resolve job
// unless a fresh or in-flight record already covers it. Invalid input is
// reported as preview.ErrInvalidInput.
func (s *Service) Submit(ctx context.Context, rawURL string) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if _, err := preview.Validate(rawURL); err != nil {
		return nil, err
	}
	canonical, err := lookup.CacheKey(rawURL)
	if err != nil {
		return nil, err
	}

	record, err := s.previewRepo.GetByURL(ctx, canonical)
	switch {
	case err == nil:
		switch {
		case record.Status == domain.PreviewStatusPending || record.Status == domain.PreviewStatusProcessing:
			return &Result{Preview: record}, nil
		case record.Status == domain.PreviewStatusComplete && !record.IsStale(s.now(), s.staleAfter):
			return &Result{Preview: record, Fresh: true}, nil
		}
		if err := s.previewRepo.UpdateStatus(ctx, record.ID, domain.PreviewStatusPending, nil); err != nil {
			return nil, fmt.Errorf("reset preview status: %w", err)
		}
		record.Status = domain.PreviewStatusPending
		record.Error = nil
	case errors.Is(err, domain.ErrNotFound):
		record, err = s.create(ctx, canonical)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("look up preview: %w", err)
	}

	jobID, err := s.queueRepo.Enqueue(ctx, domain.JobTypeResolvePreview, domain.ResolvePreviewPayload{
		PreviewID: record.ID.String(),
		URL:       rawURL,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue resolve job: %w", err)
	}

	s.logger.Info("Preview queued",
		"preview_id", record.ID,
		"job_id", jobID,
		"url", canonical,
	)
	return &Result{Preview: record, JobID: jobID}, nil
}

// create inserts a pending record, falling back to the existing one when
// another caller stored the same URL first.
func (s *Service) create(ctx context.Context, canonical string) (*domain.Preview, error) {
	record := &domain.Preview{
		URL:    canonical,
		Status: domain.PreviewStatusPending,
	}
	err := s.previewRepo.Create(ctx, record)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return s.previewRepo.GetByURL(ctx, canonical)
	}
	if err != nil {
		return nil, fmt.Errorf("create preview: %w", err)
	}
	return record, nil
}
