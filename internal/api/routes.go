package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/medscry/internal/api/middleware"
	"github.com/phrazzld/medscry/internal/api/shared"
)

// RegisterRoutes mounts the progression API under /api and the health check.
func RegisterRoutes(r chi.Router, h *ProgressionHandler, auth *middleware.AuthMiddleware) {
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Get("/mix", h.GetDailyMix)
		r.Post("/sessions", h.CompleteSession)
		r.Post("/domains/{domain}/mini-osce", h.SubmitMiniOSCE)
		r.Post("/recovery", h.RequestRecovery)
		r.Delete("/recovery", h.ExitRecovery)
		r.Post("/cards/{id}/reset", h.ResetCard)
		r.Get("/profile", h.GetProfile)
		r.Patch("/profile/preferences", h.UpdatePreferences)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(shared.RoleAdmin))
			r.Post("/admin/learners/{learnerID}/domains/{domain}/reopen", h.ReopenDomain)
		})
	})

	r.Get("/health", Health)
}
