package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteMounter registers extra routes on the root router, such as the
// tracking callbacks.
type RouteMounter interface {
	Routes(r chi.Router)
}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string, extra ...RouteMounter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Get("/health", health.HandleHealth)
	r.Get("/health/ready", health.HandleReadiness)
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Logger).Post("/events", h.HandleEvent)

		r.Get("/deliveries", h.ListDeliveries)
		r.Get("/deliveries/{id}", h.GetDelivery)

		r.Get("/analytics/rates", h.GetRates)
		r.Get("/analytics/summary", h.GetSummary)

		r.Get("/catalog", h.GetCatalog)
	})

	for _, m := range extra {
		m.Routes(r)
	}
	return r
}
