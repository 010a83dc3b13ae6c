package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"linkcard/internal/config"
	"linkcard/internal/domain"
	"linkcard/internal/service/preview"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

type failCall struct {
	id    string
	retry bool
}

// memoryQueue hands out jobs in FIFO order and records the outcome of each
type memoryQueue struct {
	mu        sync.Mutex
	pending   []*domain.QueueJob
	completed []string
	failed    []failCall
	promoted  atomic.Int64
}

func (q *memoryQueue) push(t *testing.T, payload domain.ResolvePreviewPayload) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), domain.JobTypeResolvePreview, payload)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return id
}

func (q *memoryQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) (string, error) {
	// Round-trip through JSON like the Redis queue does
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	id := fmt.Sprintf("job-%d", len(q.pending)+len(q.completed)+len(q.failed)+1)
	q.pending = append(q.pending, &domain.QueueJob{
		ID:      id,
		Type:    jobType,
		Payload: decoded,
		Status:  domain.JobStatusPending,
	})
	return id, nil
}

func (q *memoryQueue) Dequeue(ctx context.Context, jobType string) (*domain.QueueJob, error) {
	q.mu.Lock()
	if len(q.pending) > 0 {
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()

	// Stand-in for the blocking pop timing out
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (q *memoryQueue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *memoryQueue) Fail(ctx context.Context, jobID string, errorMsg string, retry bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, failCall{id: jobID, retry: retry})
	return nil
}

func (q *memoryQueue) GetPendingCount(ctx context.Context, jobType string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

func (q *memoryQueue) ProcessRetryJobs(ctx context.Context, jobType string) error {
	q.promoted.Add(1)
	return nil
}

func (q *memoryQueue) GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error) {
	return nil, nil
}

func (q *memoryQueue) settled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.completed) + len(q.failed)
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Concurrency:  3,
		PollInterval: config.DurationFrom(10 * time.Millisecond),
	}
}

func runUntilSettled(t *testing.T, w *WorkerService, q *memoryQueue, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for q.settled() < want {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("only %d of %d jobs settled", q.settled(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestWorkerProcessesQueue(t *testing.T) {
	repo := newFakePreviewRepo()
	queue := &memoryQueue{}
	resolver := &fakeResolver{errs: map[string]error{
		"javascript:alert(1)": fmt.Errorf("%w: unsupported scheme", preview.ErrInvalidInput),
	}}
	processor := NewJobProcessor(createTestLogger(), resolver, repo, nil)
	w := New(testWorkerConfig(), createTestLogger(), queue, processor)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		rawURL := fmt.Sprintf("https://example.com/%d", i)
		id := repo.seed(rawURL)
		ids = append(ids, id)
		queue.push(t, domain.ResolvePreviewPayload{PreviewID: id.String(), URL: rawURL})
	}
	badID := repo.seed("javascript:alert(1)")
	badJob := queue.push(t, domain.ResolvePreviewPayload{PreviewID: badID.String(), URL: "javascript:alert(1)"})
	garbledJob := queue.push(t, domain.ResolvePreviewPayload{PreviewID: "not-a-uuid", URL: "https://example.com/"})

	runUntilSettled(t, w, queue, 7)

	if len(queue.completed) != 5 {
		t.Errorf("completed %d jobs, want 5", len(queue.completed))
	}
	for _, id := range ids {
		if got := repo.get(id).Status; got != domain.PreviewStatusComplete {
			t.Errorf("preview %s status = %q, want complete", id, got)
		}
	}

	failures := map[string]bool{}
	for _, f := range queue.failed {
		failures[f.id] = f.retry
	}
	for _, jobID := range []string{badJob, garbledJob} {
		retry, ok := failures[jobID]
		if !ok {
			t.Errorf("job %s was not failed", jobID)
			continue
		}
		if retry {
			t.Errorf("job %s scheduled for retry, want dead", jobID)
		}
	}
	if got := repo.get(badID).Status; got != domain.PreviewStatusFailed {
		t.Errorf("invalid URL preview status = %q, want failed", got)
	}

	stats := w.GetStats()
	if stats.JobsProcessed != 7 || stats.JobsSucceeded != 5 || stats.JobsFailed != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWorkerRequeuesOnShutdown(t *testing.T) {
	repo := newFakePreviewRepo()
	queue := &memoryQueue{}
	processor := NewJobProcessor(createTestLogger(), &fakeResolver{block: true}, repo, nil)
	w := New(testWorkerConfig(), createTestLogger(), queue, processor)

	id := repo.seed("https://example.com/slow")
	jobID := queue.push(t, domain.ResolvePreviewPayload{PreviewID: id.String(), URL: "https://example.com/slow"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Wait for the job to be picked up
	deadline := time.Now().Add(5 * time.Second)
	for repo.get(id).Status != domain.PreviewStatusProcessing {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("job never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if len(queue.failed) != 1 || queue.failed[0].id != jobID || !queue.failed[0].retry {
		t.Errorf("failed = %+v, want one retryable failure for %s", queue.failed, jobID)
	}
	if got := repo.get(id).Status; got != domain.PreviewStatusPending {
		t.Errorf("status = %q, want pending", got)
	}
}

func TestWorkerPromotesRetries(t *testing.T) {
	queue := &memoryQueue{}
	processor := NewJobProcessor(createTestLogger(), &fakeResolver{}, newFakePreviewRepo(), nil)
	w := New(testWorkerConfig(), createTestLogger(), queue, processor)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for queue.promoted.Load() < 2 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("retry promotion never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestNewClampsConfig(t *testing.T) {
	w := New(config.WorkerConfig{}, createTestLogger(), &memoryQueue{}, nil)
	if w.config.Concurrency != 1 {
		t.Errorf("concurrency = %d, want 1", w.config.Concurrency)
	}
	if w.limiter.Burst() != 1 {
		t.Errorf("burst = %d, want 1", w.limiter.Burst())
	}
}
