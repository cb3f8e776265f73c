package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/syllabus/internal/apperr"
	"github.com/starford/syllabus/internal/catalog"
	"github.com/starford/syllabus/internal/models"
)

// ProgrammeSearchResponse is one page of programme search hits.
type ProgrammeSearchResponse = catalog.Page[catalog.ProgrammeHit]

// ModuleSearchResponse is one page of module search hits.
type ModuleSearchResponse = catalog.Page[catalog.ModuleHit]

// ProgrammeDetail is the programme response type (aliased from the query layer).
type ProgrammeDetail = catalog.ProgrammeDetail

// ModuleDetail is the module response type (aliased from the query layer).
type ModuleDetail = catalog.ModuleDetail

// ModuleListResponse wraps a programme's staged module listing.
type ModuleListResponse struct {
	ProgrammeID string                  `json:"programme_id" example:"CS101" validate:"required"`
	Modules     []catalog.ModuleListing `json:"modules" validate:"required"`
}

// pageParams reads page and size. Missing values are zero and get the
// catalog defaults; values that are not integers are rejected.
func pageParams(q url.Values) (page, size int, err error) {
	if page, err = intParam(q, "page"); err != nil {
		return 0, 0, err
	}
	if size, err = intParam(q, "size"); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, apperr.ErrInvalidArgument)
	}
	return n, nil
}

// listFilter reads the stage and classification filters.
func listFilter(q url.Values) (catalog.ListFilter, error) {
	f := catalog.ListFilter{
		Stage: strings.TrimSpace(q.Get("stage")),
		Query: q.Get("q"),
	}
	if raw := strings.TrimSpace(q.Get("classification")); raw != "" {
		c, err := models.ParseClassification(raw)
		if err != nil {
			return catalog.ListFilter{}, err
		}
		f.Classification = c
	}
	return f, nil
}

// PathParam extracts a path segment by its route key. Supports encoded ids
// (e.g. MATH%2F101).
func PathParam(r *http.Request, key string) string {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}
