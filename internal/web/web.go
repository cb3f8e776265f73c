// Package web serves the server-rendered dashboard pages.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/syllabus/internal/api"
	"github.com/starford/syllabus/internal/apperr"
	"github.com/starford/syllabus/internal/catalog"
	"github.com/starford/syllabus/internal/catalogservice"
	"github.com/starford/syllabus/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"programmes", "programme", "modules", "module", "error"}

// Views renders catalog pages.
type Views struct {
	svc   *catalogservice.Service
	pages map[string]*template.Template
}

// New parses the page templates.
func New(svc *catalogservice.Service) (*Views, error) {
	funcs := template.FuncMap{
		"pct": func(f float64) string { return strconv.Itoa(int(f*100+0.5)) + "%" },
		"num": func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) },
		"path": url.PathEscape,
	}
	v := &Views{svc: svc, pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// Routes mounts the pages on a chi router.
func (v *Views) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", v.programmes)
	r.Get("/programmes/{id}", v.programme)
	r.Get("/modules", v.modules)
	r.Get("/modules/{id}", v.module)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		v.render(w, http.StatusNotFound, "error", errorPage{Title: "Not found", Message: "There is no page at " + r.URL.Path + "."})
	})
	return r
}

type pager struct {
	Page       int
	TotalPages int
	Total      int
	PrevURL    string
	NextURL    string
}

func newPager(base string, q url.Values, page, totalPages, total int) pager {
	p := pager{Page: page, TotalPages: totalPages, Total: total}
	link := func(n int) string {
		vals := url.Values{}
		for k, vs := range q {
			vals[k] = vs
		}
		vals.Set("page", strconv.Itoa(n))
		return base + "?" + vals.Encode()
	}
	if page > 1 {
		p.PrevURL = link(min(page-1, max(totalPages, 1)))
	}
	if page < totalPages {
		p.NextURL = link(page + 1)
	}
	return p
}

type programmesPage struct {
	Title string
	Query string
	Hits  []catalog.ProgrammeHit
	Pager pager
}

type stageGroup struct {
	Stage   string
	Modules []catalog.ModuleListing
}

type programmePage struct {
	Title          string
	Programme      catalog.ProgrammeDetail
	Groups         []stageGroup
	Stage          string
	Classification string
	Query          string
	Shown          int
}

type modulesPage struct {
	Title string
	Query string
	Hits  []catalog.ModuleHit
	Pager pager
}

type modulePage struct {
	Title  string
	Module catalog.ModuleDetail
	// From is the programme the module was opened from, if any.
	From string
}

type errorPage struct {
	Title   string
	Message string
}

func (v *Views) programmes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	res, err := v.svc.SearchProgrammes(r.Context(), q.Get("q"), page, size)
	if err != nil {
		v.fail(w, err)
		return
	}
	v.render(w, http.StatusOK, "programmes", programmesPage{
		Title: "Programmes",
		Query: q.Get("q"),
		Hits:  res.Items,
		Pager: newPager("/", q, res.Page, res.TotalPages, res.Total),
	})
}

func (v *Views) programme(w http.ResponseWriter, r *http.Request) {
	id := api.PathParam(r, "id")
	p, err := v.svc.GetProgramme(r.Context(), id)
	if err != nil {
		v.fail(w, err)
		return
	}

	q := r.URL.Query()
	f := catalog.ListFilter{Stage: q.Get("stage"), Query: q.Get("q")}
	if raw := q.Get("classification"); raw != "" {
		// Unknown classifications are ignored.
		if c, err := models.ParseClassification(raw); err == nil {
			f.Classification = c
		}
	}
	list, err := v.svc.ListModules(r.Context(), id, f)
	if err != nil {
		v.fail(w, err)
		return
	}

	var groups []stageGroup
	for _, m := range list {
		if n := len(groups); n == 0 || groups[n-1].Stage != m.Stage {
			groups = append(groups, stageGroup{Stage: m.Stage})
		}
		groups[len(groups)-1].Modules = append(groups[len(groups)-1].Modules, m)
	}

	v.render(w, http.StatusOK, "programme", programmePage{
		Title:          p.Name,
		Programme:      p,
		Groups:         groups,
		Stage:          f.Stage,
		Classification: string(f.Classification),
		Query:          f.Query,
		Shown:          len(list),
	})
}

func (v *Views) modules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	res, err := v.svc.SearchModules(r.Context(), q.Get("q"), page, size)
	if err != nil {
		v.fail(w, err)
		return
	}
	v.render(w, http.StatusOK, "modules", modulesPage{
		Title: "Modules",
		Query: q.Get("q"),
		Hits:  res.Items,
		Pager: newPager("/modules", q, res.Page, res.TotalPages, res.Total),
	})
}

func (v *Views) module(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	m, err := v.svc.GetModule(r.Context(), api.PathParam(r, "id"), from)
	if err != nil {
		v.fail(w, err)
		return
	}
	v.render(w, http.StatusOK, "module", modulePage{Title: m.Title, Module: m, From: from})
}

func (v *Views) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		v.render(w, http.StatusNotFound, "error", errorPage{Title: "Not found", Message: err.Error() + "."})
	case errors.Is(err, apperr.ErrNotReady):
		v.render(w, http.StatusServiceUnavailable, "error", errorPage{Title: "Loading", Message: "The catalog is still loading. Try again shortly."})
	default:
		slog.Error("web: render failed", slog.String("error", err.Error()))
		v.render(w, http.StatusInternalServerError, "error", errorPage{Title: "Error", Message: "Something went wrong."})
	}
}

// render buffers the whole page; a template error yields a plain 500.
func (v *Views) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := v.pages[page].Execute(&buf, data); err != nil {
		slog.Error("web: template failed", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
