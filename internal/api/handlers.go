package api

import (
	"net/http"
	"strings"

	"github.com/starford/syllabus/internal/catalogservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *catalogservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *catalogservice.Service) *Handler {
	return &Handler{svc: svc}
}

// SearchProgrammes handles GET /api/programmes.
//
//	@Summary		Search programmes by name or id
//	@Tags			programmes
//	@Produce		json
//	@Param			q		query		string	false	"Search query; empty lists every programme"
//	@Param			page	query		int		false	"1-based page"
//	@Param			size	query		int		false	"Page size"
//	@Success		200		{object}	ProgrammeSearchResponse
//	@Failure		400		{object}	errResponse
//	@Router			/programmes [get]
func (h *Handler) SearchProgrammes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := pageParams(q)
	if err != nil {
		writeError(w, "search programmes", err)
		return
	}
	res, err := h.svc.SearchProgrammes(r.Context(), q.Get("q"), page, size)
	if err != nil {
		writeError(w, "search programmes", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetProgramme handles GET /api/programmes/{id}.
//
//	@Summary		Get a programme with its stage breakdown
//	@Tags			programmes
//	@Produce		json
//	@Param			id	path		string	true	"Programme id"
//	@Success		200	{object}	ProgrammeDetail
//	@Failure		404	{object}	errResponse
//	@Router			/programmes/{id} [get]
func (h *Handler) GetProgramme(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProgramme(r.Context(), PathParam(r, "id"))
	if err != nil {
		writeError(w, "get programme", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListProgrammeModules handles GET /api/programmes/{id}/modules.
//
//	@Summary		List a programme's modules by stage
//	@Tags			programmes
//	@Produce		json
//	@Param			id				path		string	true	"Programme id"
//	@Param			stage			query		string	false	"Only this stage"
//	@Param			classification	query		string	false	"core or option"
//	@Param			q				query		string	false	"Only modules whose title, id, coordinator or school contains this"
//	@Success		200				{object}	ModuleListResponse
//	@Failure		400				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Router			/programmes/{id}/modules [get]
func (h *Handler) ListProgrammeModules(w http.ResponseWriter, r *http.Request) {
	id := PathParam(r, "id")
	f, err := listFilter(r.URL.Query())
	if err != nil {
		writeError(w, "list modules", err)
		return
	}
	mods, err := h.svc.ListModules(r.Context(), id, f)
	if err != nil {
		writeError(w, "list modules", err)
		return
	}
	writeJSON(w, http.StatusOK, ModuleListResponse{ProgrammeID: id, Modules: mods})
}

// SearchModules handles GET /api/modules.
//
//	@Summary		Search every module by title or id
//	@Tags			modules
//	@Produce		json
//	@Param			q		query		string	false	"Search query; empty lists every module"
//	@Param			page	query		int		false	"1-based page"
//	@Param			size	query		int		false	"Page size"
//	@Success		200		{object}	ModuleSearchResponse
//	@Failure		400		{object}	errResponse
//	@Router			/modules [get]
func (h *Handler) SearchModules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := pageParams(q)
	if err != nil {
		writeError(w, "search modules", err)
		return
	}
	res, err := h.svc.SearchModules(r.Context(), q.Get("q"), page, size)
	if err != nil {
		writeError(w, "search modules", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetModule handles GET /api/modules/{id}.
//
//	@Summary		Get module detail
//	@Tags			modules
//	@Produce		json
//	@Param			id			path		string	true	"Module id"
//	@Param			programme	query		string	false	"Programme the module was opened from"
//	@Success		200			{object}	ModuleDetail
//	@Failure		404	{object}	errResponse
//	@Router			/modules/{id} [get]
func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("programme"))
	m, err := h.svc.GetModule(r.Context(), PathParam(r, "id"), from)
	if err != nil {
		writeError(w, "get module", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Stats handles GET /api/stats.
//
//	@Summary		Catalog counts and load report
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	catalog.Stats
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
