package refresh

import (
	"net/http"

	"github.com/EmpoweredVote/tract-census/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes(svc *Service) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminTokenMiddleware(svc.cfg.AdminTokenHash))

		r.Post("/", svc.Refresh)
		r.Get("/status", svc.Status)
	})

	return r
}
