// Package catalog is the in-memory query layer over the loaded lookup tables.
//
// A Catalog is built once from typed records and never mutated afterwards, so
// every method is safe for concurrent use without locking.
package catalog

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/syllabus/internal/models"
)

// Options tunes pagination and detail views.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	SimilarLimit    int

	// SchoolSimilarLimit caps the same-school and different-school lists.
	SchoolSimilarLimit int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		DefaultPageSize:    20,
		MaxPageSize:        100,
		SimilarLimit:       10,
		SchoolSimilarLimit: 5,
	}
}

// Input is everything the loader hands over to build a Catalog.
type Input struct {
	Programmes  []models.Programme
	Modules     []models.Module
	Memberships []models.Membership
	// DroppedRows counts records the loader rejected before building.
	DroppedRows int
	Fingerprint string
	LoadedAt    time.Time
}

// Report summarises what was kept and dropped while building.
type Report struct {
	Programmes         int `json:"programmes"`
	Modules            int `json:"modules"`
	Memberships        int `json:"memberships"`
	DroppedRows        int `json:"dropped_rows"`
	DroppedMemberships int `json:"dropped_memberships"`
	UnresolvedRefs     int `json:"unresolved_refs"`
}

// Stats describes the catalog snapshot.
type Stats struct {
	Fingerprint string    `json:"fingerprint"`
	LoadedAt    time.Time `json:"loaded_at"`
	Report      Report    `json:"report"`
}

// searchKey holds the lower-cased strings a search compares against. text
// is every searchable field joined by newlines.
type searchKey struct {
	id   string
	name string
	text string
}

func newSearchKey(id, name string, extra ...string) searchKey {
	fields := append([]string{name, id}, extra...)
	return searchKey{
		id:   strings.ToLower(id),
		name: strings.ToLower(name),
		text: strings.ToLower(strings.Join(fields, "\n")),
	}
}

// dependentKinds are the constraint kinds shown in reverse on the module a
// constraint names ("prerequisite for" and so on).
var dependentKinds = []models.ConstraintKind{
	models.KindPrerequisite,
	models.KindCorequisite,
	models.KindLearningRequirement,
}

// Catalog is an immutable, indexed view of the programmes and modules.
type Catalog struct {
	opts Options

	programmes []models.Programme // sorted by name, then id
	progByID   map[string]int
	progKeys   []searchKey

	modules []models.Module // sorted by title, then id
	modByID map[string]int
	modKeys []searchKey

	byProgramme map[string][]models.Membership // listing order
	byModule    map[string][]models.Membership
	// dependents[target][kind] lists, in title order, the modules whose
	// constraints of kind name target.
	dependents map[string]map[models.ConstraintKind][]string

	fingerprint string
	loadedAt    time.Time
	report      Report
}

// New builds a Catalog. Duplicate ids keep the first record; memberships
// naming unknown programmes or modules are dropped and counted.
func New(in Input, opts Options) *Catalog {
	opts = opts.withDefaults()
	c := &Catalog{
		opts:        opts,
		progByID:    make(map[string]int, len(in.Programmes)),
		modByID:     make(map[string]int, len(in.Modules)),
		byProgramme: make(map[string][]models.Membership),
		byModule:    make(map[string][]models.Membership),
		dependents:  make(map[string]map[models.ConstraintKind][]string),
		fingerprint: in.Fingerprint,
		loadedAt:    in.LoadedAt,
	}
	c.report.DroppedRows = in.DroppedRows

	seen := make(map[string]struct{}, len(in.Programmes))
	for _, p := range in.Programmes {
		if _, dup := seen[p.ID]; dup {
			c.report.DroppedRows++
			continue
		}
		seen[p.ID] = struct{}{}
		c.programmes = append(c.programmes, p)
	}
	sort.SliceStable(c.programmes, func(i, j int) bool {
		return nameLess(c.programmes[i].Name, c.programmes[i].ID, c.programmes[j].Name, c.programmes[j].ID)
	})

	clear(seen)
	for _, m := range in.Modules {
		if _, dup := seen[m.ID]; dup {
			c.report.DroppedRows++
			continue
		}
		seen[m.ID] = struct{}{}
		c.modules = append(c.modules, m)
	}
	sort.SliceStable(c.modules, func(i, j int) bool {
		return nameLess(c.modules[i].Title, c.modules[i].ID, c.modules[j].Title, c.modules[j].ID)
	})

	c.progKeys = make([]searchKey, len(c.programmes))
	for i, p := range c.programmes {
		c.progByID[p.ID] = i
		c.progKeys[i] = newSearchKey(p.ID, p.Name, p.Faculty, p.Award, p.Level, p.SearchText)
	}
	c.modKeys = make([]searchKey, len(c.modules))
	for i, m := range c.modules {
		c.modByID[m.ID] = i
		c.modKeys[i] = newSearchKey(m.ID, m.Title, m.Coordinator, m.School)
	}

	c.indexMemberships(in.Memberships)
	c.indexDependents()
	c.deriveStageCounts()
	c.countUnresolved()

	c.report.Programmes = len(c.programmes)
	c.report.Modules = len(c.modules)
	return c
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = d.DefaultPageSize
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = d.MaxPageSize
	}
	if o.DefaultPageSize > o.MaxPageSize {
		o.DefaultPageSize = o.MaxPageSize
	}
	if o.SimilarLimit <= 0 {
		o.SimilarLimit = d.SimilarLimit
	}
	if o.SchoolSimilarLimit <= 0 {
		o.SchoolSimilarLimit = d.SchoolSimilarLimit
	}
	return o
}

func (c *Catalog) indexMemberships(rows []models.Membership) {
	type pair struct{ prog, mod string }
	seen := make(map[pair]struct{}, len(rows))
	for _, m := range rows {
		_, okProg := c.progByID[m.ProgrammeID]
		_, okMod := c.modByID[m.ModuleID]
		if !okProg || !okMod {
			c.report.DroppedMemberships++
			continue
		}
		k := pair{m.ProgrammeID, m.ModuleID}
		if _, dup := seen[k]; dup {
			c.report.DroppedMemberships++
			continue
		}
		seen[k] = struct{}{}
		c.byProgramme[m.ProgrammeID] = append(c.byProgramme[m.ProgrammeID], m)
		c.byModule[m.ModuleID] = append(c.byModule[m.ModuleID], m)
		c.report.Memberships++
	}

	for _, list := range c.byProgramme {
		sort.SliceStable(list, func(i, j int) bool { return c.listingLess(list[i], list[j]) })
	}
	for _, list := range c.byModule {
		sort.SliceStable(list, func(i, j int) bool {
			a := c.programmes[c.progByID[list[i].ProgrammeID]]
			b := c.programmes[c.progByID[list[j].ProgrammeID]]
			return nameLess(a.Name, a.ID, b.Name, b.ID)
		})
	}
}

// indexDependents inverts the constraint lists. Modules are visited in title
// order, so each list comes out sorted; self references and ids outside the
// catalog are skipped.
func (c *Catalog) indexDependents() {
	for _, m := range c.modules {
		for _, con := range m.Constraints {
			if !slices.Contains(dependentKinds, con.Kind) {
				continue
			}
			for _, target := range con.ModuleIDs {
				if _, ok := c.modByID[target]; !ok || target == m.ID {
					continue
				}
				byKind := c.dependents[target]
				if byKind == nil {
					byKind = make(map[models.ConstraintKind][]string)
					c.dependents[target] = byKind
				}
				list := byKind[con.Kind]
				if n := len(list); n > 0 && list[n-1] == m.ID {
					continue
				}
				byKind[con.Kind] = append(list, m.ID)
			}
		}
	}
}

// deriveStageCounts fills StageCount from membership when metadata omitted it.
func (c *Catalog) deriveStageCounts() {
	for i := range c.programmes {
		if c.programmes[i].StageCount > 0 {
			continue
		}
		stages := make(map[string]struct{})
		for _, m := range c.byProgramme[c.programmes[i].ID] {
			stages[m.Stage] = struct{}{}
		}
		c.programmes[i].StageCount = len(stages)
	}
}

func (c *Catalog) countUnresolved() {
	for _, m := range c.modules {
		for _, con := range m.Constraints {
			for _, id := range con.ModuleIDs {
				if _, ok := c.modByID[id]; !ok {
					c.report.UnresolvedRefs++
				}
			}
		}
		for _, e := range m.Similar {
			if _, ok := c.modByID[e.To]; !ok {
				c.report.UnresolvedRefs++
			}
		}
	}
}

// listingLess orders memberships by stage, core before option, then title.
func (c *Catalog) listingLess(a, b models.Membership) bool {
	if a.Stage != b.Stage {
		return stageLess(a.Stage, b.Stage)
	}
	if a.Classification != b.Classification {
		return a.Classification == models.ClassificationCore
	}
	ma := c.modules[c.modByID[a.ModuleID]]
	mb := c.modules[c.modByID[b.ModuleID]]
	return nameLess(ma.Title, ma.ID, mb.Title, mb.ID)
}

// stageLess compares stages numerically when both are numbers; numbered
// stages sort before named ones.
func stageLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil && na != nb:
		return na < nb
	case errA == nil && errB != nil:
		return true
	case errA != nil && errB == nil:
		return false
	}
	return strings.ToLower(a) < strings.ToLower(b)
}

func nameLess(nameA, idA, nameB, idB string) bool {
	la, lb := strings.ToLower(nameA), strings.ToLower(nameB)
	if la != lb {
		return la < lb
	}
	return idA < idB
}

// Options returns the options the catalog was built with.
func (c *Catalog) Options() Options { return c.opts }

// Stats returns counts and identity of this snapshot.
func (c *Catalog) Stats() Stats {
	return Stats{
		Fingerprint: c.fingerprint,
		LoadedAt:    c.loadedAt,
		Report:      c.report,
	}
}

// Fingerprint identifies the artifacts this catalog was built from.
func (c *Catalog) Fingerprint() string { return c.fingerprint }
