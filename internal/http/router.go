package http

import (
	"linkcard/internal/domain"
	"linkcard/internal/http/handlers"
	"linkcard/internal/http/middleware"
	"linkcard/internal/service/submit"
	"log/slog"
	"net/http"
	"time"
)

// RouterDeps are the services the HTTP API is built on
type RouterDeps struct {
	Lookup       handlers.Lookuper
	PreviewRepo  domain.PreviewRepository
	QueueRepo    domain.QueueRepository
	HealthChecks map[string]handlers.HealthCheck

	APIKey      string
	CORSOrigins []string

	// StaleAfter is how old a stored preview may get before a new
	// submission re-queues it
	StaleAfter time.Duration
}

type Router struct {
	mux             *http.ServeMux
	logger          *slog.Logger
	auth            *middleware.APIKeyAuth
	corsOrigins     []string
	healthHandler   *handlers.HealthHandler
	statsHandler    *handlers.StatsHandler
	previewsHandler *handlers.PreviewsHandler
}

func NewRouter(logger *slog.Logger, deps RouterDeps) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		logger:          logger,
		auth:            middleware.NewAPIKeyAuth(deps.APIKey, logger),
		corsOrigins:     deps.CORSOrigins,
		healthHandler:   handlers.NewHealthHandler(logger, deps.HealthChecks),
		statsHandler:    handlers.NewStatsHandler(logger, deps.QueueRepo),
		previewsHandler: handlers.NewPreviewsHandler(
			logger,
			deps.Lookup,
			submit.New(deps.PreviewRepo, deps.QueueRepo, deps.StaleAfter, logger),
			deps.PreviewRepo,
		),
	}
}

func (r *Router) SetupRoutes() http.Handler {
	// Health check stays public for load balancers
	r.mux.HandleFunc("GET /health", r.healthHandler.HandleHealth)

	// API v1 routes - Stats
	r.protect("GET /api/v1/stats", r.statsHandler.HandleStats)

	// API v1 routes - Ad hoc resolution
	r.protect("GET /api/v1/preview", r.previewsHandler.GetPreview)
	r.protect("POST /api/v1/previews/batch", r.previewsHandler.BatchPreviews)

	// API v1 routes - Stored previews
	r.protect("POST /api/v1/previews", r.previewsHandler.CreatePreview)
	r.protect("GET /api/v1/previews", r.previewsHandler.ListPreviews)
	r.protect("GET /api/v1/previews/{id}", r.previewsHandler.GetPreviewByID)

	return middleware.Chain(r.mux,
		middleware.RequestLogger(r.logger),
		middleware.CORS(r.corsOrigins),
	)
}

func (r *Router) protect(pattern string, handler http.HandlerFunc) {
	r.mux.Handle(pattern, r.auth.Middleware(handler))
}
