// Package router assembles the chi router serving the HTTP API.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"opensilex-backend/internal/infrastructure/observability"
	"opensilex-backend/internal/interfaces/http/handlers"
	"opensilex-backend/internal/middleware"
)

// Handlers groups the route handlers.
type Handlers struct {
	Resolve   *handlers.ResolveHandler
	Ontology  *handlers.OntologyHandler
	Resources *handlers.ResourceHandler
	Events    *handlers.EventsHandler
	Health    *handlers.HealthHandler
}

// Options configures cross-cutting middleware.
type Options struct {
	ServiceName    string
	RequestTimeout time.Duration
	// Metrics may be nil, which disables request metrics and /metrics.
	Metrics     *observability.Collector
	MetricsPath string
	Tracing     bool
	CORS        *cors.Options
}

// New builds the router.
func New(h Handlers, opts Options, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	if opts.CORS != nil {
		r.Use(cors.Handler(*opts.CORS))
	}
	if opts.Tracing {
		r.Use(observability.TracingMiddleware(opts.ServiceName))
	}
	if opts.Metrics != nil {
		r.Use(observability.MetricsMiddleware(opts.Metrics))
	}

	r.Get("/health", h.Health.Live)
	r.Get("/health/ready", h.Health.Ready)
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))

		r.Post("/resources/resolve", h.Resolve.Resolve)

		r.Post("/resources", h.Resources.Register)
		r.Get("/resources", h.Resources.Get)
		r.Delete("/resources", h.Resources.Remove)

		r.Route("/ontology", func(r chi.Router) {
			r.Get("/subclasses", h.Ontology.SubClasses)
			r.Get("/properties", h.Ontology.Properties)
			r.Get("/cache/stats", h.Ontology.Stats)
			r.Post("/cache/invalidate", h.Ontology.Invalidate)
		})

		r.Post("/events/ontology-cache", h.Events.OntologyCache)
	})

	return r
}
