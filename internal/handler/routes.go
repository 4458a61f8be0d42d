package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YannKr/countersignal/internal/metrics"
)

// Mounter adds routes served outside the operator API, such as the
// callback listener.
type Mounter interface {
	Routes(r chi.Router)
}

// Routes builds the full router. The callback routes are mounted without
// rate limiting or operator auth.
func (h *Handler) Routes(callbacks Mounter, apiRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	if callbacks != nil {
		callbacks.Routes(r)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.apiRateLimit(apiRL))
		r.Use(h.requireOperator)

		r.Post("/campaigns", h.APICampaignCreate)
		r.Get("/campaigns", h.APICampaignList)
		r.Get("/campaigns/{id}", h.APICampaignGet)
		r.Delete("/campaigns/{id}", h.APICampaignDelete)
		r.Get("/campaigns/{id}/hits", h.APICampaignHits)
		r.Get("/campaigns/{id}/artifacts/{token}", h.APIArtifactDownload)

		r.Get("/techniques", h.APITechniques)
		r.Post("/extract", h.APIExtract)
		r.Get("/stats", h.APIStats)
		r.Get("/rejected", h.APIRejected)
		r.Get("/hits/stream", h.HitStream)
		if h.Cfg.AllowReset {
			r.Post("/reset", h.APIReset)
		}
	})
	return r
}
