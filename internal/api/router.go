// Package api exposes the CareScribe HTTP surface: conversation submission,
// transcript and report retrieval, client management, health probes, and
// the Prometheus metrics endpoint.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carescribe/carescribe/internal/health"
	"github.com/carescribe/carescribe/internal/observe"
)

// Router assembles the HTTP routes for the CareScribe server.
type Router struct {
	handler *Handler
	health  *health.Handler
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewRouter creates a [Router] serving the given handler, health probes,
// and metrics. A nil metrics falls back to the process-wide default set.
func NewRouter(handler *Handler, healthHandler *health.Handler, metrics *observe.Metrics, logger *slog.Logger) *Router {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handler: handler,
		health:  healthHandler,
		metrics: metrics,
		logger:  logger,
	}
}

// Routes returns the fully assembled HTTP handler.
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(observe.Middleware(r.metrics))

	router.Route("/api/v1", func(router chi.Router) {
		router.Post("/conversations", r.handler.CreateConversation)

		router.Get("/transcriptions", r.handler.ListTranscriptions)
		router.Get("/transcriptions/{id}", r.handler.GetTranscription)

		router.Post("/reports", r.handler.CreateReport)
		router.Get("/reports", r.handler.ListReports)
		router.Get("/reports/{id}", r.handler.GetReport)
		router.Put("/reports/{id}", r.handler.UpdateReport)
		router.Delete("/reports/{id}", r.handler.DeleteReport)

		router.Get("/clients", r.handler.ListClients)
		router.Get("/clients/{id}", r.handler.GetClient)
		router.Put("/clients/{id}", r.handler.UpdateClient)
		router.Put("/clients/{id}/status", r.handler.UpdateClientStatus)
	})

	router.Get("/healthz", r.health.Healthz)
	router.Get("/readyz", r.health.Readyz)
	router.Handle("/metrics", promhttp.Handler())

	return router
}
