package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reservepay/retryd/internal/api"
	"github.com/reservepay/retryd/internal/core"
	"github.com/reservepay/retryd/internal/metrics"
)

// NewRouter creates and configures the HTTP router with all retry
// scheduler routes.
func NewRouter(service core.Service, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(api.RequestLogger(logger))

	// Optional API key authentication
	if cfg.APIKey != "" {
		r.Use(api.KeyAuth(cfg.APIKey, "/metrics", "/retry/v1/health"))
	}

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Create handlers
	itemHandler := api.NewItemHandler(service)
	analyticsHandler := api.NewAnalyticsHandler(service)
	systemHandler := api.NewSystemHandler(service)

	// System endpoints
	r.Get("/retry/v1/health", systemHandler.Health)
	r.Get("/retry/v1/policies", systemHandler.Policies)

	// Item endpoints
	r.Post("/retry/v1/items", itemHandler.Create)
	r.Get("/retry/v1/items", itemHandler.List)
	r.Get("/retry/v1/items/{id}", itemHandler.Get)
	r.Get("/retry/v1/items/{id}/history", itemHandler.History)

	// Analytics
	r.Get("/retry/v1/analytics", analyticsHandler.Get)

	// Operator endpoints; manual retry requires the admin key. The
	// admin-role check lives here, one layer above the processor.
	r.Group(func(r chi.Router) {
		r.Use(api.AdminAuth(cfg.AdminKey))
		r.Post("/retry/v1/items/{id}/retry", itemHandler.ManualRetry)
		r.Post("/retry/v1/cycle", itemHandler.RunCycle)
	})

	return r
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start).Seconds()
		path := metricRoutePattern(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, fmt.Sprintf("%d", ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path, fmt.Sprintf("%d", ww.Status())).Observe(duration)
	})
}

func metricRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
