package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/syllabus/internal/catalogservice"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *catalogservice.Service, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(CatalogETag(svc))

		// Programmes.
		r.Get("/programmes", h.SearchProgrammes)
		r.Get("/programmes/{id}", h.GetProgramme)
		r.Get("/programmes/{id}/modules", h.ListProgrammeModules)

		// Modules.
		r.Get("/modules", h.SearchModules)
		r.Get("/modules/{id}", h.GetModule)

		r.Get("/stats", h.Stats)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
