// Package rest assembles the chi router for the catalog API.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"repokit/internal/config"
	"repokit/internal/infrastructure/observability"
	"repokit/internal/interfaces/http/handlers"
	"repokit/internal/interfaces/http/middleware"
)

// Router creates and configures the HTTP router.
type Router struct {
	products   *handlers.ProductHandler
	categories *handlers.CategoryHandler
	metrics    *observability.Collector
	config     *config.Config
	logger     *zap.Logger
}

// NewRouter wires the handlers. metrics may be nil when metrics are disabled.
func NewRouter(
	products *handlers.ProductHandler,
	categories *handlers.CategoryHandler,
	metrics *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		products:   products,
		categories: categories,
		metrics:    metrics,
		config:     cfg,
		logger:     logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	if rt.config.Logging.LogRequests {
		router.Use(middleware.Logger(rt.logger))
	}
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.config.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Location"},
		MaxAge:         300,
	}))

	router.Get("/health", rt.healthCheck)
	if rt.metrics != nil {
		router.Handle(rt.config.Metrics.Path, rt.metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(rt.config.Server.RequestTimeout))
		r.Route("/products", rt.products.Routes)
		r.Route("/categories", rt.categories.Routes)
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","backend":"` + rt.config.Store.Backend + `"}`))
}
