// Package catalogservice holds the current catalog snapshot and serves every
// query against it. Readers never lock: each call loads the snapshot pointer
// once and works on that immutable value.
package catalogservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/syllabus/internal/apperr"
	"github.com/starford/syllabus/internal/catalog"
)

// LoadFunc builds a fresh catalog from the artifact source.
type LoadFunc func(ctx context.Context) (*catalog.Catalog, error)

// Service coordinates loading and querying the catalog.
type Service struct {
	load   LoadFunc
	logger *slog.Logger

	cur      atomic.Pointer[catalog.Catalog]
	reloadMu sync.Mutex
}

// New creates a service. Nothing is loaded until Reload is called.
func New(load LoadFunc, logger *slog.Logger) *Service {
	return &Service{load: load, logger: logger}
}

// NewWithCatalog creates a service already holding cat.
func NewWithCatalog(cat *catalog.Catalog, load LoadFunc, logger *slog.Logger) *Service {
	s := New(load, logger)
	s.cur.Store(cat)
	return s
}

// Current returns the current snapshot, or nil before the first load.
func (s *Service) Current() *catalog.Catalog { return s.cur.Load() }

// Ready reports whether a catalog has been loaded.
func (s *Service) Ready() bool { return s.cur.Load() != nil }

// Reload builds a new catalog and swaps it in when its fingerprint differs
// from the current one. On error the current catalog is kept.
func (s *Service) Reload(ctx context.Context) (changed bool, err error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	next, err := s.load(ctx)
	if err != nil {
		return false, fmt.Errorf("catalogservice: reload: %w", err)
	}
	if prev := s.cur.Load(); prev != nil && prev.Fingerprint() == next.Fingerprint() {
		s.logger.Debug("catalogservice: artifacts unchanged", slog.String("fingerprint", next.Fingerprint()))
		return false, nil
	}
	s.cur.Store(next)
	s.logger.Info("catalogservice: catalog swapped", slog.String("fingerprint", next.Fingerprint()))
	return true, nil
}

type snapshotKey struct{}

// WithSnapshot pins cat for every query made with the returned context, so
// a request keeps reading the catalog it was first answered from even if a
// reload swaps the current one meanwhile.
func WithSnapshot(ctx context.Context, cat *catalog.Catalog) context.Context {
	return context.WithValue(ctx, snapshotKey{}, cat)
}

// snapshot returns the catalog pinned in ctx, or the current one.
func (s *Service) snapshot(ctx context.Context) (*catalog.Catalog, error) {
	if c, ok := ctx.Value(snapshotKey{}).(*catalog.Catalog); ok && c != nil {
		return c, nil
	}
	c := s.cur.Load()
	if c == nil {
		return nil, apperr.ErrNotReady
	}
	return c, nil
}

// SearchProgrammes ranks programmes against query.
func (s *Service) SearchProgrammes(ctx context.Context, query string, page, size int) (catalog.Page[catalog.ProgrammeHit], error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return catalog.Page[catalog.ProgrammeHit]{}, err
	}
	return c.SearchProgrammes(query, page, size), nil
}

// GetProgramme returns one programme with its stage breakdown.
func (s *Service) GetProgramme(ctx context.Context, id string) (catalog.ProgrammeDetail, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return catalog.ProgrammeDetail{}, err
	}
	return c.GetProgramme(id)
}

// ListModules returns a programme's staged module listing.
func (s *Service) ListModules(ctx context.Context, programmeID string, f catalog.ListFilter) ([]catalog.ModuleListing, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListModulesForProgramme(programmeID, f)
}

// SearchModules ranks every module against query.
func (s *Service) SearchModules(ctx context.Context, query string, page, size int) (catalog.Page[catalog.ModuleHit], error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return catalog.Page[catalog.ModuleHit]{}, err
	}
	return c.SearchModules(query, page, size), nil
}

// GetModule returns the module detail panel. from, when set, is the
// programme the module was opened from.
func (s *Service) GetModule(ctx context.Context, id, from string) (catalog.ModuleDetail, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return catalog.ModuleDetail{}, err
	}
	return c.GetModuleDetailFrom(id, from)
}

// Stats describes the current snapshot.
func (s *Service) Stats(ctx context.Context) (catalog.Stats, error) {
	c, err := s.snapshot(ctx)
	if err != nil {
		return catalog.Stats{}, err
	}
	return c.Stats(), nil
}
