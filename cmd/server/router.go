package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/medscry/internal/api"
	"github.com/phrazzld/medscry/internal/api/middleware"
)

// setupRouter builds the router with the standard middleware stack.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace(app.logger))
	r.Use(chimiddleware.Recoverer)

	api.RegisterRoutes(r,
		api.NewProgressionHandler(app.service, app.logger),
		middleware.NewAuthMiddleware(app.config.Auth.JWTSecret))
	return r
}
