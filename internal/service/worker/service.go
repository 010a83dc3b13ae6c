package worker

import (
	"context"
	"errors"
	"fmt"
	"linkcard/internal/config"
	"linkcard/internal/domain"
	"linkcard/internal/service/preview"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WorkerService pulls resolve jobs off the queue and runs them with bounded
// concurrency and a shared outbound rate limit.
type WorkerService struct {
	config    config.WorkerConfig
	logger    *slog.Logger
	queueRepo domain.QueueRepository
	processor *JobProcessor
	limiter   *rate.Limiter

	statsMu sync.Mutex
	stats   WorkerStats
}

// WorkerStats tracks worker performance metrics
type WorkerStats struct {
	JobsProcessed  int64
	JobsSucceeded  int64
	JobsFailed     int64
	LastJobTime    time.Time
	AverageJobTime time.Duration
}

// New creates a new worker service
func New(
	cfg config.WorkerConfig,
	logger *slog.Logger,
	queueRepo domain.QueueRepository,
	processor *JobProcessor,
) *WorkerService {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	cfg.Concurrency = concurrency

	return &WorkerService{
		config:    cfg,
		logger:    logger,
		queueRepo: queueRepo,
		processor: processor,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Run processes jobs until ctx is cancelled, then waits for in-flight jobs
func (w *WorkerService) Run(ctx context.Context) error {
	w.logger.Info("Starting worker service...",
		"concurrency", w.config.Concurrency,
		"rate_per_sec", w.config.RatePerSec,
	)

	var retries sync.WaitGroup
	retries.Add(1)
	go func() {
		defer retries.Done()
		w.promoteRetries(ctx)
	}()

	var jobs errgroup.Group
	jobs.SetLimit(w.config.Concurrency)

	for ctx.Err() == nil {
		if err := w.limiter.Wait(ctx); err != nil {
			break
		}

		job, err := w.queueRepo.Dequeue(ctx, domain.JobTypeResolvePreview)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("Failed to dequeue job", "error", err)
			w.sleep(ctx, w.config.PollInterval.Duration)
			continue
		}
		if job == nil {
			continue
		}

		// Blocks while every slot is busy
		jobs.Go(func() error {
			w.processJob(ctx, job)
			return nil
		})
	}

	w.logger.Info("Waiting for in-flight jobs...")
	jobs.Wait()
	retries.Wait()
	w.logger.Info("Worker service stopped")
	return nil
}

// promoteRetries moves due retries back onto the pending queue
func (w *WorkerService) promoteRetries(ctx context.Context) {
	interval := w.config.PollInterval.Duration
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queueRepo.ProcessRetryJobs(ctx, domain.JobTypeResolvePreview); err != nil && ctx.Err() == nil {
				w.logger.Error("Failed to promote retry jobs", "error", err)
			}
		}
	}
}

func (w *WorkerService) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// processJob processes a single job
func (w *WorkerService) processJob(ctx context.Context, job *domain.QueueJob) {
	startTime := time.Now()
	jobLogger := w.logger.With(
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.RetryCount+1,
	)

	var processingErr error
	switch job.Type {
	case domain.JobTypeResolvePreview:
		processingErr = w.processor.ProcessResolvePreview(ctx, job.Payload, jobLogger)
	default:
		processingErr = fmt.Errorf("%w: unknown job type %s", errBadPayload, job.Type)
	}

	// Queue bookkeeping must land even during shutdown
	bg := context.WithoutCancel(ctx)

	if processingErr != nil {
		retry := isRetryable(processingErr)
		if ctx.Err() != nil {
			jobLogger.Info("Job interrupted by shutdown, requeueing")
			retry = true
		} else {
			jobLogger.Error("Job processing failed", "error", processingErr, "retry", retry)
		}

		if err := w.queueRepo.Fail(bg, job.ID, processingErr.Error(), retry); err != nil {
			jobLogger.Error("Failed to mark job as failed", "error", err)
		}
	} else {
		if err := w.queueRepo.Complete(bg, job.ID); err != nil {
			jobLogger.Error("Failed to mark job as completed", "error", err)
		}
	}

	jobDuration := time.Since(startTime)
	w.record(processingErr == nil, jobDuration)

	jobLogger.Debug("Job processing completed",
		"duration", jobDuration,
		"success", processingErr == nil,
	)
}

// isRetryable reports whether another attempt could succeed. Malformed jobs,
// invalid URLs and deleted records never will.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, errBadPayload),
		errors.Is(err, preview.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound):
		return false
	}
	return true
}

func (w *WorkerService) record(success bool, d time.Duration) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	w.stats.JobsProcessed++
	if success {
		w.stats.JobsSucceeded++
	} else {
		w.stats.JobsFailed++
	}
	w.stats.LastJobTime = time.Now()

	// Running mean
	n := w.stats.JobsProcessed
	w.stats.AverageJobTime += (d - w.stats.AverageJobTime) / time.Duration(n)
}

// GetStats returns a snapshot of worker statistics
func (w *WorkerService) GetStats() WorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// HealthCheck verifies the queue is reachable
func (w *WorkerService) HealthCheck(ctx context.Context) error {
	if _, err := w.queueRepo.GetPendingCount(ctx, domain.JobTypeResolvePreview); err != nil {
		return fmt.Errorf("queue connectivity check failed: %w", err)
	}
	return nil
}
