package handlers

import (
	"context"
	"linkcard/internal/domain"
	"log/slog"
	"net/http"
	"time"
)

// QueueStats is the part of the queue repository the stats endpoint reads
type QueueStats interface {
	GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error)
}

type StatsHandler struct {
	logger *slog.Logger
	queue  QueueStats
}

func NewStatsHandler(logger *slog.Logger, queue QueueStats) *StatsHandler {
	return &StatsHandler{
		logger: logger,
		queue:  queue,
	}
}

type StatsResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Queue     map[string]int64 `json:"queue"`
}

func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.GetQueueStats(r.Context(), domain.JobTypeResolvePreview)
	if err != nil {
		h.logger.Error("Failed to read queue stats", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, StatsResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Queue:     stats,
	})
}
