package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/syllabus/internal/catalog"
	"github.com/starford/syllabus/internal/catalogservice"
	"github.com/starford/syllabus/internal/loader"
	"github.com/starford/syllabus/internal/models"
	"github.com/starford/syllabus/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv builds a service over the fixture catalog and a router for it.
func testEnv(t *testing.T) (*catalogservice.Service, http.Handler) {
	t.Helper()
	svc := catalogservice.NewWithCatalog(testutil.Catalog(t), nil, quietLogger())
	return svc, NewRouter(svc, nil)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestSearchProgrammes(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/programmes?q=computer+science")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}

	var res struct {
		Items []struct {
			ID          string `json:"id"`
			ModuleCount int    `json:"module_count"`
			Rank        string `json:"rank"`
		} `json:"items"`
		Total int `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Items) == 0 || res.Items[0].ID != "CS101" || res.Items[0].Rank != "exact" {
		t.Fatalf("items = %+v", res.Items)
	}
	if res.Items[0].ModuleCount != 4 {
		t.Errorf("module count = %d, want 4", res.Items[0].ModuleCount)
	}
}

func TestSearchProgrammes_Pagination(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/programmes?page=2&size=1")
	p := decode[catalog.Page[catalog.ProgrammeHit]](t, w)
	if p.Total != 2 || p.TotalPages != 2 || p.Page != 2 || len(p.Items) != 1 {
		t.Errorf("page = %+v", p)
	}
	if p.Items[0].ID != "CS101" {
		t.Errorf("second page = %s, want CS101", p.Items[0].ID)
	}

	w = get(t, router, "/programmes?page=9")
	p = decode[catalog.Page[catalog.ProgrammeHit]](t, w)
	if p.Total != 2 || len(p.Items) != 0 {
		t.Errorf("past-the-end page = %+v", p)
	}
}

func TestSearch_BadPageParam(t *testing.T) {
	_, router := testEnv(t)
	for _, target := range []string{"/programmes?page=two", "/modules?size=lots"} {
		w := get(t, router, target)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

func TestGetProgramme(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/programmes/BUS200")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	d := decode[catalog.ProgrammeDetail](t, w)
	if d.Name != "Business and Computing" || d.StageCount != 2 || d.ModuleCount != 3 {
		t.Errorf("detail = %+v", d)
	}

	w = get(t, router, "/programmes/NOPE")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown programme status = %d, want 404", w.Code)
	}
	if body := decode[errResponse](t, w); body.Error != "not found" {
		t.Errorf("error body = %+v", body)
	}
}

func TestListProgrammeModules(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/programmes/CS101/modules")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[ModuleListResponse](t, w)
	var ids []string
	for _, m := range res.Modules {
		ids = append(ids, m.ModuleID)
	}
	want := []string{"COMP10010", "COMP20010", "COMP30030", "COMP30020"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}

	w = get(t, router, "/programmes/CS101/modules?stage=3&classification=Optional")
	res = decode[ModuleListResponse](t, w)
	if len(res.Modules) != 1 || res.Modules[0].ModuleID != "COMP30020" {
		t.Errorf("filtered listing = %+v", res.Modules)
	}
}

func TestListProgrammeModules_Errors(t *testing.T) {
	_, router := testEnv(t)

	if w := get(t, router, "/programmes/CS101/modules?classification=sometimes"); w.Code != http.StatusBadRequest {
		t.Errorf("bad classification status = %d, want 400", w.Code)
	}
	if w := get(t, router, "/programmes/NOPE/modules"); w.Code != http.StatusNotFound {
		t.Errorf("unknown programme status = %d, want 404", w.Code)
	}
}

func TestSearchModules(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/modules?q=&size=100")
	p := decode[catalog.Page[catalog.ModuleHit]](t, w)
	if p.Total != 5 || len(p.Items) != 5 {
		t.Errorf("empty query page = %+v", p)
	}

	w = get(t, router, "/modules?q=algo")
	p = decode[catalog.Page[catalog.ModuleHit]](t, w)
	if len(p.Items) == 0 || p.Items[0].ID != "COMP30020" {
		t.Errorf("algo search = %+v", p.Items)
	}
}

func TestGetModule(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/modules/COMP30020")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	d := decode[catalog.ModuleDetail](t, w)
	if d.Title != "Algorithms" {
		t.Errorf("title = %q", d.Title)
	}
	if len(d.Constraints) != 2 {
		t.Fatalf("constraints = %+v", d.Constraints)
	}
	refs := d.Constraints[0].Modules
	if len(refs) != 2 || !refs[0].Resolved || refs[1].Resolved || refs[1].Title != "COMP99999" {
		t.Errorf("prerequisite refs = %+v", refs)
	}
	if len(d.Similar) != 2 || d.Similar[0].ID != "COMP20010" {
		t.Errorf("similar = %+v", d.Similar)
	}
	if len(d.Programmes) != 1 || d.Programmes[0].ProgrammeID != "CS101" {
		t.Errorf("programmes = %+v", d.Programmes)
	}

	if w := get(t, router, "/modules/NOPE"); w.Code != http.StatusNotFound {
		t.Errorf("unknown module status = %d, want 404", w.Code)
	}
}

func TestStats(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/stats")
	st := decode[catalog.Stats](t, w)
	if st.Fingerprint != "fixture" || st.Report.Modules != 5 || st.Report.DroppedMemberships != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestETag_NotModified(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/modules/COMP10010")
	etag := w.Header().Get("ETag")
	if etag != `"fixture"` {
		t.Fatalf("etag = %q", etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/modules/COMP10010", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Errorf("conditional GET = %d with %d bytes, want 304 and empty", w.Code, w.Body.Len())
	}

	req = httptest.NewRequest(http.MethodGet, "/modules/COMP10010", nil)
	req.Header.Set("If-None-Match", `"stale"`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("stale etag status = %d, want 200", w.Code)
	}
}

func TestNotReady(t *testing.T) {
	svc := catalogservice.New(func(context.Context) (*catalog.Catalog, error) {
		return nil, context.Canceled
	}, quietLogger())
	router := NewRouter(svc, nil)

	if w := get(t, router, "/modules"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestEventsMounted(t *testing.T) {
	svc := catalogservice.NewWithCatalog(testutil.Catalog(t), nil, quietLogger())
	called := false
	router := NewRouter(svc, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	get(t, router, "/events")
	if !called {
		t.Error("events handler not mounted")
	}
}

func TestSearch_HugePageIsEmpty(t *testing.T) {
	_, router := testEnv(t)
	huge := strconv.Itoa(math.MaxInt)

	for _, path := range []string{"/modules", "/programmes"} {
		w := get(t, router, path+"?size=2&page="+huge)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body = %s", path, w.Code, w.Body.String())
		}
		var p struct {
			Items []json.RawMessage `json:"items"`
			Total int               `json:"total"`
			Page  int               `json:"page"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
			t.Fatalf("%s decode: %v", path, err)
		}
		if p.Items == nil || len(p.Items) != 0 || p.Total == 0 || p.Page != math.MaxInt {
			t.Errorf("%s page = %+v", path, p)
		}
	}
}

func TestListProgrammeModules_Query(t *testing.T) {
	_, router := testEnv(t)

	w := get(t, router, "/programmes/CS101/modules?q=+OKAFOR+")
	res := decode[ModuleListResponse](t, w)
	if len(res.Modules) != 1 || res.Modules[0].ModuleID != "COMP30020" {
		t.Errorf("modules = %+v", res.Modules)
	}
}

func TestGetModule_FromProgramme(t *testing.T) {
	_, router := testEnv(t)

	d := decode[catalog.ModuleDetail](t, get(t, router, "/modules/COMP10010?programme=CS101"))
	if d.Subtitle != "CS101 - Core - Dr Byrne - Autumn - 5 Credits" {
		t.Errorf("subtitle = %q", d.Subtitle)
	}
	if len(d.OtherProgrammes) != 1 || d.OtherProgrammes[0].ProgrammeID != "BUS200" {
		t.Errorf("other programmes = %+v", d.OtherProgrammes)
	}

	d = decode[catalog.ModuleDetail](t, get(t, router, "/modules/COMP20010"))
	if len(d.RequiredBy) != 1 || len(d.RequiredBy[0].Modules) != 2 {
		t.Errorf("required by = %+v", d.RequiredBy)
	}
}

func TestGetModule_EscapedID(t *testing.T) {
	cat := catalog.New(catalog.Input{
		Modules: []models.Module{{ID: "MATH/101", Title: "Calculus"}},
	}, catalog.DefaultOptions())
	router := NewRouter(catalogservice.NewWithCatalog(cat, nil, quietLogger()), nil)

	w := get(t, router, "/modules/MATH%2F101")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if d := decode[catalog.ModuleDetail](t, w); d.ID != "MATH/101" {
		t.Errorf("id = %q", d.ID)
	}
}

func TestNonFiniteCellsServeValidJSON(t *testing.T) {
	dir, store := testutil.FixtureStore(t)
	testutil.WriteCSV(t, dir, "module_details.csv", [][]string{
		{"module_id", "title", "credits", "similar_modules"},
		{"COMP10010", "Introduction to Programming", "nan", "COMP20010:nan;COMP30020:0.5"},
		{"COMP20010", "Data Structures", "inf", `[["COMP10010", 1e400]]`},
	})
	cat, err := loader.Load(context.Background(), store, loader.Options{}, quietLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	router := NewRouter(catalogservice.NewWithCatalog(cat, nil, quietLogger()), nil)

	for _, id := range []string{"COMP10010", "COMP20010"} {
		w := get(t, router, "/modules/"+id)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body = %s", id, w.Code, w.Body.String())
		}
		d := decode[catalog.ModuleDetail](t, w)
		if d.ID != id || d.Credits != 0 {
			t.Errorf("%s detail = %+v", id, d)
		}
	}
	d := decode[catalog.ModuleDetail](t, get(t, router, "/modules/COMP10010"))
	if len(d.Similar) != 1 || d.Similar[0].ID != "COMP30020" {
		t.Errorf("similar = %+v", d.Similar)
	}
}

func TestETag_HandlerAnswersFromTaggedSnapshot(t *testing.T) {
	var loads int
	svc := catalogservice.New(func(context.Context) (*catalog.Catalog, error) {
		loads++
		in := testutil.Input()
		in.Fingerprint = "v" + strconv.Itoa(loads)
		return catalog.New(in, catalog.DefaultOptions()), nil
	}, quietLogger())
	if _, err := svc.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The handler reloads before reading, as a watcher firing mid-request would.
	h := CatalogETag(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.Reload(context.Background()); err != nil {
			t.Error(err)
		}
		st, err := svc.Stats(r.Context())
		if err != nil {
			t.Error(err)
		}
		writeJSON(w, http.StatusOK, st)
	}))

	w := get(t, h, "/stats")
	st := decode[catalog.Stats](t, w)
	if etag := w.Header().Get("ETag"); etag != `"v1"` || st.Fingerprint != "v1" {
		t.Errorf("etag %s served body of %s", etag, st.Fingerprint)
	}
	if svc.Current().Fingerprint() != "v2" {
		t.Errorf("current = %s, want v2", svc.Current().Fingerprint())
	}
}

func TestWriteJSON_EncodeFailureIs500(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]float64{"score": math.NaN()})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decode[errResponse](t, w); body.Error != "internal error" {
		t.Errorf("body = %+v", body)
	}
}
