package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the full route tree. The webhook endpoint is
// mounted outside /api because the external service calls it unsigned
// by our auth conventions; it carries its own HMAC verification.
func SetupRoutes(h *Handlers, webhook http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	if webhook != nil {
		r.Handle("/webhooks/mailchimp", webhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/submissions", h.HandleSubmission)

		r.Get("/lists", h.GetLists)
		r.Get("/lists/{listID}/merge-fields", h.GetMergeFields)

		r.Get("/queue/stats", h.GetQueueStats)

		r.Route("/forms/{formID}", func(r chi.Router) {
			r.Get("/settings", h.GetFormSettings)
			r.Put("/settings", h.SaveFormSettings)
			r.Get("/mapping", h.GetFieldMapping)
			r.Put("/mapping", h.SaveFieldMapping)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/overview", h.GetAnalyticsOverview)
			r.Get("/chart", h.GetAnalyticsChart)
			r.Get("/export", h.ExportAnalytics)
		})
	})

	return r
}
