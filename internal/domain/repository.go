package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PreviewRepository defines the interface for persisted preview operations
type PreviewRepository interface {
	// GetByID retrieves a preview by its UUID
	GetByID(ctx context.Context, id uuid.UUID) (*Preview, error)

	// GetByURL retrieves a preview by its canonical URL
	GetByURL(ctx context.Context, url string) (*Preview, error)

	// Create inserts a new preview
	Create(ctx context.Context, preview *Preview) error

	// Update modifies an existing preview
	Update(ctx context.Context, preview *Preview) error

	// UpdateStatus updates the resolution status and error message
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error

	// ListRecent returns the most recently created previews
	ListRecent(ctx context.Context, limit int) ([]*Preview, error)
}

// PreviewCache stores resolved metadata keyed by canonical URL.
// Get returns (nil, nil) on a miss.
type PreviewCache interface {
	Get(ctx context.Context, url string) (*PreviewMetadata, error)
	Set(ctx context.Context, url string, metadata *PreviewMetadata, ttl time.Duration) error
	Delete(ctx context.Context, url string) error
}

// QueueRepository defines the interface for job queue operations
type QueueRepository interface {
	// Enqueue adds a new job to the queue and returns its ID
	Enqueue(ctx context.Context, jobType string, payload interface{}) (string, error)

	// Dequeue retrieves the next job from the queue, nil when none is available
	Dequeue(ctx context.Context, jobType string) (*QueueJob, error)

	// Complete marks a job as completed
	Complete(ctx context.Context, jobID string) error

	// Fail marks a job as failed; retry schedules it again with backoff
	Fail(ctx context.Context, jobID string, errorMsg string, retry bool) error

	// GetPendingCount returns the number of pending jobs
	GetPendingCount(ctx context.Context, jobType string) (int, error)

	// ProcessRetryJobs moves due retries back to the pending queue
	ProcessRetryJobs(ctx context.Context, jobType string) error

	// GetQueueStats returns counters for a job type
	GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error)
}

// QueueJob represents a job in the processing queue
type QueueJob struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	Status     string                 `json:"status"`
	RetryCount int                    `json:"retry_count"`
	CreatedAt  string                 `json:"created_at"`
	UpdatedAt  *string                `json:"updated_at"`
}

// Job types
const (
	JobTypeResolvePreview = "resolve_preview"
)

// Job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ResolvePreviewPayload is the queue payload for JobTypeResolvePreview
type ResolvePreviewPayload struct {
	PreviewID string `json:"preview_id"`
	URL       string `json:"url"`
}
