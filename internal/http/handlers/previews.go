package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"linkcard/internal/domain"
	"linkcard/internal/service/lookup"
	"linkcard/internal/service/preview"
	"linkcard/internal/service/submit"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxBatchURLs bounds a single batch request
	MaxBatchURLs = 20

	DefaultBatchConcurrency = 4
	DefaultListLimit        = 20

	maxRequestBytes = 64 * 1024
)

// Lookuper resolves previews on demand
type Lookuper interface {
	Lookup(ctx context.Context, rawURL string) (*lookup.Result, error)
}

// Submitter queues URLs for background resolution
type Submitter interface {
	Submit(ctx context.Context, rawURL string) (*submit.Result, error)
}

type PreviewsHandler struct {
	logger           *slog.Logger
	lookup           Lookuper
	submitter        Submitter
	previewRepo      domain.PreviewRepository
	batchConcurrency int
}

func NewPreviewsHandler(
	logger *slog.Logger,
	lookup Lookuper,
	submitter Submitter,
	previewRepo domain.PreviewRepository,
) *PreviewsHandler {
	return &PreviewsHandler{
		logger:           logger,
		lookup:           lookup,
		submitter:        submitter,
		previewRepo:      previewRepo,
		batchConcurrency: DefaultBatchConcurrency,
	}
}

// PreviewResponse wraps an ad hoc lookup
type PreviewResponse struct {
	Preview *domain.PreviewMetadata `json:"preview"`
	Cached  bool                    `json:"cached"`
}

type BatchRequest struct {
	URLs []string `json:"urls"`
}

// BatchItem carries either a preview or the reason the URL was rejected
type BatchItem struct {
	URL     string                  `json:"url"`
	Preview *domain.PreviewMetadata `json:"preview,omitempty"`
	Cached  bool                    `json:"cached,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []BatchItem `json:"results"`
}

type CreatePreviewRequest struct {
	URL string `json:"url"`
}

type PreviewsListResponse struct {
	Previews []*domain.Preview `json:"previews"`
}

// GetPreview resolves ?url= synchronously
func (h *PreviewsHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if strings.TrimSpace(rawURL) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "url query parameter is required")
		return
	}

	result, err := h.lookup.Lookup(r.Context(), rawURL)
	if err != nil {
		h.writeLookupError(w, rawURL, err)
		return
	}

	if result.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, h.logger, http.StatusOK, PreviewResponse{
		Preview: result.Metadata,
		Cached:  result.Cached,
	})
}

// BatchPreviews resolves up to MaxBatchURLs URLs concurrently. Results keep
// request order; a bad URL fails only its own item.
func (h *PreviewsHandler) BatchPreviews(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "urls must not be empty")
		return
	}
	if len(req.URLs) > MaxBatchURLs {
		writeError(w, h.logger, http.StatusBadRequest, "too many urls (max "+strconv.Itoa(MaxBatchURLs)+")")
		return
	}

	results := make([]BatchItem, len(req.URLs))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(h.batchConcurrency)
	for i, rawURL := range req.URLs {
		g.Go(func() error {
			results[i] = BatchItem{URL: rawURL}
			res, err := h.lookup.Lookup(ctx, rawURL)
			if err != nil {
				if errors.Is(err, preview.ErrInvalidInput) {
					results[i].Error = "invalid url"
					return nil
				}
				// Only cancellation reaches here; stop the rest of the batch
				return err
			}
			results[i].Preview = res.Metadata
			results[i].Cached = res.Cached
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.logger.Warn("Batch aborted", "error", err, "count", len(req.URLs))
		writeError(w, h.logger, http.StatusServiceUnavailable, "Request cancelled")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, BatchResponse{Results: results})
}

// CreatePreview stores a record for the URL and queues it for background
// resolution. An existing fresh record is returned with 200.
func (h *PreviewsHandler) CreatePreview(w http.ResponseWriter, r *http.Request) {
	var req CreatePreviewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result, err := h.submitter.Submit(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, preview.ErrInvalidInput) {
			writeError(w, h.logger, http.StatusBadRequest, "invalid url")
			return
		}
		h.logger.Error("Failed to submit preview", "error", err, "url", req.URL)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	if result.Fresh {
		writeJSON(w, h.logger, http.StatusOK, result.Preview)
		return
	}

	w.Header().Set("Location", "/api/v1/previews/"+result.Preview.ID.String())
	writeJSON(w, h.logger, http.StatusAccepted, result.Preview)
}

// GetPreviewByID returns a stored record
func (h *PreviewsHandler) GetPreviewByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid preview ID")
		return
	}

	record, err := h.previewRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Preview not found")
			return
		}
		h.logger.Error("Failed to get preview", "error", err, "preview_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, record)
}

// ListPreviews returns the most recently stored records
func (h *PreviewsHandler) ListPreviews(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	previews, err := h.previewRepo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list previews", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}
	if previews == nil {
		previews = []*domain.Preview{}
	}

	writeJSON(w, h.logger, http.StatusOK, PreviewsListResponse{Previews: previews})
}

func (h *PreviewsHandler) writeLookupError(w http.ResponseWriter, rawURL string, err error) {
	if errors.Is(err, preview.ErrInvalidInput) {
		writeError(w, h.logger, http.StatusBadRequest, "invalid url")
		return
	}
	h.logger.Warn("Preview lookup aborted", "url", rawURL, "error", err)
	writeError(w, h.logger, http.StatusServiceUnavailable, "Request cancelled")
}
