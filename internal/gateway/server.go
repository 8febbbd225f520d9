package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.Handler())

	// API endpoints require auth. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/approvals", g.handleListApprovals())
				r.Post("/approvals/{id}/resolve", g.handleResolveApproval())
				r.Post("/approvals/prune", g.handlePrune())
				r.Get("/paused", g.handleListPaused())
				r.Get("/agents", g.handleListAgents())
				r.Get("/audit", g.handleListAudit())
			})
		})
	}

	return r
}
