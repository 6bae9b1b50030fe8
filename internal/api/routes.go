package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skywatch-ops/fieldlog/internal/analytics"
	"github.com/skywatch-ops/fieldlog/internal/config"
	"github.com/skywatch-ops/fieldlog/internal/exchange"
	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	tracker *ops.Tracker,
	engine *analytics.Engine,
	store ops.Store,
	exporter *exchange.Exporter,
	importer *exchange.Importer,
	config *config.Config,
	logger *logger.Logger,
) *Router {
	return &Router{
		handler:    NewHandler(tracker, engine, store, exporter, importer, config, logger),
		middleware: NewMiddleware(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))
	router.Use(r.middleware.Throttle)

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Session routes
		router.Post("/events", r.handler.ApplyEvent)
		router.Get("/operators/{id}/state", r.handler.GetOperatorState)

		// Record routes
		router.Get("/records", r.handler.GetRecords)
		router.Delete("/records", r.handler.ClearRecords)

		// Analytics routes
		router.Get("/analytics/kpi", r.handler.GetKPISummary)
		router.Get("/analytics/rollup", r.handler.GetRollup)
		router.Get("/analytics/heatmap", r.handler.GetHeatmap)
		router.Get("/analytics/efficiency", r.handler.GetEfficiency)
		router.Get("/analytics/variability", r.handler.GetVariability)
		router.Get("/analytics/status", r.handler.GetStatusBreakdown)
		router.Get("/analytics/areas", r.handler.GetAreaFrequency)

		// Bulk exchange routes
		router.Get("/export", r.handler.ExportCSV)
		router.Post("/import", r.handler.ImportCSV)

		// Health check
		router.Get("/health", r.handler.GetHealth)

		// Configuration
		router.Get("/config", r.handler.GetConfig)
		router.Get("/areas", r.handler.GetAreas)
	})

	return router
}
