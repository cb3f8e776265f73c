// Package api implements the read-only catalog REST API using chi.
package api

import (
	"net/http"
	"strings"

	"github.com/starford/syllabus/internal/catalogservice"
)

// CatalogETag tags every response with the fingerprint of the catalog
// snapshot that served it. A request whose If-None-Match carries the current
// fingerprint is answered with 304 and no body. The tagged snapshot is
// pinned in the request context so the handler answers from the same one.
func CatalogETag(svc *catalogservice.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cat := svc.Current()
			if cat == nil {
				next.ServeHTTP(w, r)
				return
			}
			r = r.WithContext(catalogservice.WithSnapshot(r.Context(), cat))
			if cat.Fingerprint() == "" {
				next.ServeHTTP(w, r)
				return
			}
			etag := `"` + cat.Fingerprint() + `"`
			w.Header().Set("ETag", etag)
			w.Header().Set("Cache-Control", "no-cache")

			for _, tag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
				tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
				if tag == etag || tag == "*" {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
