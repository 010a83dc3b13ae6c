package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"linkcard/internal/domain"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueRepository implements domain.QueueRepository on Redis lists.
//
// A job ID moves queue -> processing on dequeue (BRPOPLPUSH, so a crashed
// worker leaves it visible), then either disappears on completion, lands in
// the retry sorted set scored by its due time, or ends up in the dead list.
type QueueRepository struct {
	client       *redis.Client
	logger       *slog.Logger
	blockTimeout time.Duration
}

// NewQueueRepository creates a new Redis queue repository
func NewQueueRepository(client *redis.Client, logger *slog.Logger) *QueueRepository {
	return &QueueRepository{
		client:       client,
		logger:       logger,
		blockTimeout: 5 * time.Second,
	}
}

// Redis key patterns
const (
	queueKeyPrefix   = "queue:"      // queue:job_type
	jobKeyPrefix     = "job:"        // job:job_id
	processingPrefix = "processing:" // processing:job_type
	retryKeyPrefix   = "retry:"      // retry:job_type
	deadLetterPrefix = "dead:"       // dead:job_type
	statsKeyPrefix   = "stats:"      // stats:job_type
)

const (
	maxRetries     = 3
	initialBackoff = 2 * time.Second
	maxBackoff     = 5 * time.Minute
	jobTTL         = 24 * time.Hour
	finishedJobTTL = 6 * time.Hour
)

// storedJob is the JSON kept under job:<id>
type storedJob struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	Status     string                 `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  *time.Time             `json:"updated_at,omitempty"`
	RetryCount int                    `json:"retry_count"`
	MaxRetries int                    `json:"max_retries"`
	NextRetry  *time.Time             `json:"next_retry,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func (j *storedJob) toDomain() *domain.QueueJob {
	job := &domain.QueueJob{
		ID:         j.ID,
		Type:       j.Type,
		Payload:    j.Payload,
		Status:     j.Status,
		RetryCount: j.RetryCount,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
	}
	if j.UpdatedAt != nil {
		updated := j.UpdatedAt.Format(time.RFC3339)
		job.UpdatedAt = &updated
	}
	return job
}

// backoffFor doubles the delay per attempt, capped at maxBackoff
func backoffFor(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := float64(initialBackoff) * math.Pow(2, float64(retryCount-1))
	return time.Duration(math.Min(delay, float64(maxBackoff)))
}

// Enqueue adds a new job to the queue and returns its ID
func (r *QueueRepository) Enqueue(ctx context.Context, jobType string, payload interface{}) (string, error) {
	// Round-trip through JSON so any struct payload becomes a generic map
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &payloadMap); err != nil {
		return "", fmt.Errorf("payload must encode as a JSON object: %w", err)
	}

	job := &storedJob{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payloadMap,
		Status:     domain.JobStatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: maxRetries,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := jobKeyPrefix + job.ID
	statsKey := statsKeyPrefix + jobType

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, jobKey, map[string]interface{}{
		"data":        string(jobData),
		"status":      job.Status,
		"type":        job.Type,
		"created_at":  job.CreatedAt.Unix(),
		"retry_count": 0,
	})
	pipe.Expire(ctx, jobKey, jobTTL)
	pipe.LPush(ctx, queueKeyPrefix+jobType, job.ID)
	pipe.HIncrBy(ctx, statsKey, "total_enqueued", 1)
	pipe.HIncrBy(ctx, statsKey, "pending", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	r.logger.Debug("Job enqueued",
		"job_id", job.ID,
		"job_type", jobType,
		"payload_size", len(payloadBytes),
	)

	return job.ID, nil
}

// Dequeue blocks up to the repository's block timeout for the next job.
// It returns (nil, nil) when nothing arrived in time.
func (r *QueueRepository) Dequeue(ctx context.Context, jobType string) (*domain.QueueJob, error) {
	processingKey := processingPrefix + jobType

	jobID, err := r.client.BRPopLPush(ctx, queueKeyPrefix+jobType, processingKey, r.blockTimeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	jobKey := jobKeyPrefix + jobID
	job, err := r.load(ctx, jobID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired while waiting; nothing left to run
			r.logger.Warn("Job data not found, removing from processing", "job_id", jobID)
			r.client.LRem(ctx, processingKey, 1, jobID)
			r.client.HIncrBy(ctx, statsKeyPrefix+jobType, "pending", -1)
			return nil, nil
		}
		return nil, err
	}

	now := time.Now()
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = &now
	updatedData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	statsKey := statsKeyPrefix + jobType
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, jobKey, map[string]interface{}{
		"data":       string(updatedData),
		"status":     job.Status,
		"updated_at": now.Unix(),
	})
	pipe.HIncrBy(ctx, statsKey, "pending", -1)
	pipe.HIncrBy(ctx, statsKey, "processing", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to update job status", "error", err, "job_id", jobID)
	}

	r.logger.Debug("Job dequeued",
		"job_id", job.ID,
		"job_type", jobType,
		"retry_count", job.RetryCount,
	)

	return job.toDomain(), nil
}

func (r *QueueRepository) load(ctx context.Context, jobID string) (*storedJob, error) {
	data, err := r.client.HGet(ctx, jobKeyPrefix+jobID, "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get job data: %w", err)
	}

	var job storedJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// Complete marks a job as completed and removes it from processing
func (r *QueueRepository) Complete(ctx context.Context, jobID string) error {
	job, err := r.load(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job for completion: %w", err)
	}

	now := time.Now()
	job.Status = domain.JobStatusCompleted
	job.UpdatedAt = &now
	updatedData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := jobKeyPrefix + jobID
	statsKey := statsKeyPrefix + job.Type

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, jobKey, map[string]interface{}{
		"data":       string(updatedData),
		"status":     job.Status,
		"updated_at": now.Unix(),
	})
	pipe.LRem(ctx, processingPrefix+job.Type, 1, jobID)
	pipe.HIncrBy(ctx, statsKey, "processing", -1)
	pipe.HIncrBy(ctx, statsKey, "completed", 1)
	pipe.Expire(ctx, jobKey, finishedJobTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	r.logger.Debug("Job completed", "job_id", jobID, "job_type", job.Type)
	return nil
}

// Fail records errorMsg on the job. With retry set and attempts left the job is
// scheduled again after an exponential backoff; otherwise it goes to the dead list.
func (r *QueueRepository) Fail(ctx context.Context, jobID string, errorMsg string, retry bool) error {
	job, err := r.load(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job for failure: %w", err)
	}

	now := time.Now()
	job.Error = errorMsg
	job.UpdatedAt = &now
	job.RetryCount++

	jobKey := jobKeyPrefix + jobID
	statsKey := statsKeyPrefix + job.Type

	pipe := r.client.TxPipeline()

	if retry && job.RetryCount <= job.MaxRetries {
		nextRetry := now.Add(backoffFor(job.RetryCount))
		job.NextRetry = &nextRetry
		job.Status = domain.JobStatusPending

		pipe.ZAdd(ctx, retryKeyPrefix+job.Type, redis.Z{
			Score:  float64(nextRetry.Unix()),
			Member: jobID,
		})
		pipe.HIncrBy(ctx, statsKey, "retried", 1)

		r.logger.Info("Job scheduled for retry",
			"job_id", jobID,
			"job_type", job.Type,
			"retry_count", job.RetryCount,
			"next_retry", nextRetry,
			"error", errorMsg,
		)
	} else {
		job.Status = domain.JobStatusFailed
		job.NextRetry = nil

		pipe.LPush(ctx, deadLetterPrefix+job.Type, jobID)
		pipe.HIncrBy(ctx, statsKey, "failed", 1)
		pipe.Expire(ctx, jobKey, jobTTL)

		r.logger.Warn("Job failed permanently",
			"job_id", jobID,
			"job_type", job.Type,
			"retry_count", job.RetryCount,
			"retryable", retry,
			"error", errorMsg,
		)
	}

	updatedData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	pipe.HSet(ctx, jobKey, map[string]interface{}{
		"data":        string(updatedData),
		"status":      job.Status,
		"updated_at":  now.Unix(),
		"retry_count": job.RetryCount,
		"error":       errorMsg,
	})
	pipe.LRem(ctx, processingPrefix+job.Type, 1, jobID)
	pipe.HIncrBy(ctx, statsKey, "processing", -1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to handle job failure: %w", err)
	}

	return nil
}

// GetPendingCount returns the number of pending jobs for a job type
func (r *QueueRepository) GetPendingCount(ctx context.Context, jobType string) (int, error) {
	count, err := r.client.LLen(ctx, queueKeyPrefix+jobType).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return int(count), nil
}

// ProcessRetryJobs moves jobs whose backoff has elapsed back to the main queue
func (r *QueueRepository) ProcessRetryJobs(ctx context.Context, jobType string) error {
	retryKey := retryKeyPrefix + jobType

	due, err := r.client.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get retry jobs: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	statsKey := statsKeyPrefix + jobType
	pipe := r.client.TxPipeline()
	for _, jobID := range due {
		pipe.ZRem(ctx, retryKey, jobID)
		pipe.LPush(ctx, queueKeyPrefix+jobType, jobID)
		pipe.HIncrBy(ctx, statsKey, "pending", 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to process retry jobs: %w", err)
	}

	r.logger.Info("Processed retry jobs",
		"job_type", jobType,
		"count", len(due),
	)

	return nil
}

// GetQueueStats returns the running counters for a job type plus current list lengths
func (r *QueueRepository) GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error) {
	stats, err := r.client.HGetAll(ctx, statsKeyPrefix+jobType).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	result := make(map[string]int64, len(stats)+4)
	for key, value := range stats {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			result[key] = n
		}
	}

	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, queueKeyPrefix+jobType)
	processing := pipe.LLen(ctx, processingPrefix+jobType)
	retrying := pipe.ZCard(ctx, retryKeyPrefix+jobType)
	dead := pipe.LLen(ctx, deadLetterPrefix+jobType)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get queue lengths: %w", err)
	}

	result["current_pending"] = pending.Val()
	result["current_processing"] = processing.Val()
	result["current_retrying"] = retrying.Val()
	result["current_dead"] = dead.Val()

	return result, nil
}
