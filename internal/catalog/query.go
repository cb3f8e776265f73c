package catalog

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/syllabus/internal/apperr"
	"github.com/starford/syllabus/internal/models"
)

// ListFilter narrows a programme's module listing. Zero values match all.
// Query is a case-insensitive substring of the module's title, id,
// coordinator or school.
type ListFilter struct {
	Stage          string
	Classification models.Classification
	Query          string
}

// ModuleListing is one row of a programme's staged module list.
type ModuleListing struct {
	ModuleID       string                `json:"module_id"`
	Title          string                `json:"title"`
	Credits        float64               `json:"credits,omitempty"`
	Stage          string                `json:"stage"`
	Classification models.Classification `json:"classification"`
}

// StageSummary counts a programme's modules in one stage.
type StageSummary struct {
	Stage  string `json:"stage"`
	Core   int    `json:"core"`
	Option int    `json:"option"`
}

// ProgrammeDetail is a programme with a per-stage breakdown of its modules.
type ProgrammeDetail struct {
	models.Programme
	ModuleCount int            `json:"module_count"`
	Stages      []StageSummary `json:"stages"`
}

// ModuleRef names a referenced module. When Resolved is false the id is not
// in the catalog and Title holds the raw id.
type ModuleRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Resolved bool   `json:"resolved"`
}

// ResolvedConstraint is a constraint with its module ids resolved.
type ResolvedConstraint struct {
	Kind      models.ConstraintKind `json:"kind"`
	Condition string                `json:"condition,omitempty"`
	Modules   []ModuleRef           `json:"modules"`
}

// SimilarModule is a ranked similarity neighbour.
type SimilarModule struct {
	ModuleRef
	Score float64 `json:"score"`
}

// Dependents lists the modules whose constraints of Kind name a module.
type Dependents struct {
	Kind    models.ConstraintKind `json:"kind"`
	Modules []ModuleRef           `json:"modules"`
}

// ProgrammeMembership is a programme containing a module, with the stage and
// classification the module has there.
type ProgrammeMembership struct {
	ProgrammeID    string                `json:"programme_id"`
	Name           string                `json:"name"`
	Subtitle       string                `json:"subtitle,omitempty"`
	Stage          string                `json:"stage"`
	Classification models.Classification `json:"classification"`
}

// ModuleDetail is everything the detail panel shows for one module.
type ModuleDetail struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Subtitle    string               `json:"subtitle"`
	Description string               `json:"description"`
	Credits     float64              `json:"credits,omitempty"`
	Trimester   string               `json:"trimester,omitempty"`
	Coordinator string               `json:"coordinator,omitempty"`
	Level       string               `json:"level,omitempty"`
	School      string               `json:"school,omitempty"`
	Constraints []ResolvedConstraint `json:"constraints"`
	RequiredBy  []Dependents         `json:"required_by"`

	Similar                []SimilarModule `json:"similar"`
	SimilarSameSchool      []SimilarModule `json:"similar_same_school"`
	SimilarDifferentSchool []SimilarModule `json:"similar_different_school"`

	Programmes []ProgrammeMembership `json:"programmes"`
	// OtherProgrammes is Programmes without the programme the module was
	// opened from.
	OtherProgrammes []ProgrammeMembership `json:"other_programmes"`
}

// GetProgramme returns the programme with its stage breakdown.
func (c *Catalog) GetProgramme(id string) (ProgrammeDetail, error) {
	i, ok := c.progByID[id]
	if !ok {
		return ProgrammeDetail{}, apperr.NotFound("programme", id)
	}
	members := c.byProgramme[id]

	stages := []StageSummary{}
	for _, m := range members {
		if n := len(stages); n == 0 || stages[n-1].Stage != m.Stage {
			stages = append(stages, StageSummary{Stage: m.Stage})
		}
		s := &stages[len(stages)-1]
		if m.Classification == models.ClassificationCore {
			s.Core++
		} else {
			s.Option++
		}
	}

	return ProgrammeDetail{
		Programme:   c.programmes[i],
		ModuleCount: len(members),
		Stages:      stages,
	}, nil
}

// ListModulesForProgramme returns the programme's modules ordered by stage,
// core before option, then title.
func (c *Catalog) ListModulesForProgramme(programmeID string, f ListFilter) ([]ModuleListing, error) {
	if _, ok := c.progByID[programmeID]; !ok {
		return nil, apperr.NotFound("programme", programmeID)
	}

	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := []ModuleListing{}
	for _, m := range c.byProgramme[programmeID] {
		if f.Stage != "" && m.Stage != f.Stage {
			continue
		}
		if f.Classification != "" && m.Classification != f.Classification {
			continue
		}
		idx := c.modByID[m.ModuleID]
		if q != "" && !strings.Contains(c.modKeys[idx].text, q) {
			continue
		}
		mod := c.modules[idx]
		out = append(out, ModuleListing{
			ModuleID:       mod.ID,
			Title:          mod.Title,
			Credits:        mod.Credits,
			Stage:          m.Stage,
			Classification: m.Classification,
		})
	}
	return out, nil
}

// GetModuleDetail returns the module with resolved constraints, its most
// similar modules and the programmes containing it.
func (c *Catalog) GetModuleDetail(id string) (ModuleDetail, error) {
	return c.GetModuleDetailFrom(id, "")
}

// GetModuleDetailFrom is GetModuleDetail for a module opened from a
// programme's listing. The subtitle names that programme and the module's
// classification in it when the module belongs to it, and OtherProgrammes
// leaves it out. An empty or unknown programme id adds no context.
func (c *Catalog) GetModuleDetailFrom(id, programmeID string) (ModuleDetail, error) {
	i, ok := c.modByID[id]
	if !ok {
		return ModuleDetail{}, apperr.NotFound("module", id)
	}
	m := c.modules[i]
	all, same, different := c.similar(m)
	programmes, others := c.containing(m.ID, programmeID)

	return ModuleDetail{
		ID:                     m.ID,
		Title:                  m.Title,
		Subtitle:               c.subtitle(m, programmeID),
		Description:            m.Description,
		Credits:                m.Credits,
		Trimester:              m.Trimester,
		Coordinator:            m.Coordinator,
		Level:                  m.Level,
		School:                 m.School,
		Constraints:            c.resolveConstraints(m.Constraints),
		RequiredBy:             c.requiredBy(m.ID),
		Similar:                all,
		SimilarSameSchool:      same,
		SimilarDifferentSchool: different,
		Programmes:             programmes,
		OtherProgrammes:        others,
	}, nil
}

func (c *Catalog) ref(id string) ModuleRef {
	if i, ok := c.modByID[id]; ok {
		return ModuleRef{ID: id, Title: c.modules[i].Title, Resolved: true}
	}
	return ModuleRef{ID: id, Title: id}
}

// resolveConstraints groups constraints by kind in display order, keeping
// source order within a kind.
func (c *Catalog) resolveConstraints(in []models.Constraint) []ResolvedConstraint {
	out := []ResolvedConstraint{}
	for _, kind := range models.ConstraintKinds {
		for _, con := range in {
			if con.Kind != kind {
				continue
			}
			refs := make([]ModuleRef, 0, len(con.ModuleIDs))
			for _, id := range con.ModuleIDs {
				refs = append(refs, c.ref(id))
			}
			out = append(out, ResolvedConstraint{Kind: kind, Condition: con.Condition, Modules: refs})
		}
	}
	return out
}

func (c *Catalog) requiredBy(id string) []Dependents {
	out := []Dependents{}
	byKind := c.dependents[id]
	for _, kind := range dependentKinds {
		ids := byKind[kind]
		if len(ids) == 0 {
			continue
		}
		refs := make([]ModuleRef, len(ids))
		for j, d := range ids {
			refs[j] = c.ref(d)
		}
		out = append(out, Dependents{Kind: kind, Modules: refs})
	}
	return out
}

type neighbour struct {
	score float64
	scope models.SchoolScope
}

// similar returns neighbours by descending score (ties by id), without
// self-edges, non-finite scores or duplicates: all of them capped at the similar limit, and the
// same-school and different-school subsets capped at the school limit.
// Neighbours whose school relation is unknown only appear in the first list.
func (c *Catalog) similar(m models.Module) (all, same, different []SimilarModule) {
	best := make(map[string]neighbour, len(m.Similar))
	for _, e := range m.Similar {
		if e.To == m.ID || math.IsNaN(e.Score) || math.IsInf(e.Score, 0) {
			continue
		}
		n, seen := best[e.To]
		if !seen || e.Score > n.score {
			n.score = e.Score
		}
		if n.scope == "" {
			n.scope = e.Scope
		}
		best[e.To] = n
	}

	all = make([]SimilarModule, 0, len(best))
	same, different = []SimilarModule{}, []SimilarModule{}
	for id, n := range best {
		sm := SimilarModule{ModuleRef: c.ref(id), Score: n.score}
		all = append(all, sm)
		switch c.schoolScope(m, id, n.scope) {
		case models.ScopeSameSchool:
			same = append(same, sm)
		case models.ScopeDifferentSchool:
			different = append(different, sm)
		}
	}
	return topSimilar(all, c.opts.SimilarLimit),
		topSimilar(same, c.opts.SchoolSimilarLimit),
		topSimilar(different, c.opts.SchoolSimilarLimit)
}

// schoolScope prefers the scope given by the artifacts and otherwise
// compares the two modules' schools when both are known.
func (c *Catalog) schoolScope(m models.Module, otherID string, given models.SchoolScope) models.SchoolScope {
	if given != "" {
		return given
	}
	j, ok := c.modByID[otherID]
	if !ok || m.School == "" || c.modules[j].School == "" {
		return ""
	}
	if strings.EqualFold(m.School, c.modules[j].School) {
		return models.ScopeSameSchool
	}
	return models.ScopeDifferentSchool
}

func topSimilar(list []SimilarModule, limit int) []SimilarModule {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].ID < list[j].ID
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// subtitle joins the context programme and the module's classification
// there (only when the module belongs to it), the coordinator, the
// trimester and the credits.
func (c *Catalog) subtitle(m models.Module, programmeID string) string {
	var prog, class string
	for _, pm := range c.byModule[m.ID] {
		if pm.ProgrammeID == programmeID {
			prog = pm.ProgrammeID
			class = capitalize(string(pm.Classification))
			break
		}
	}
	var credits string
	if m.Credits > 0 {
		credits = strconv.FormatFloat(m.Credits, 'f', -1, 64) + " Credits"
	}
	return models.JoinNonEmpty(" - ", prog, class, m.Coordinator, m.Trimester, credits)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// containing returns every programme holding the module, and the same list
// without programmeID.
func (c *Catalog) containing(moduleID, programmeID string) (all, others []ProgrammeMembership) {
	members := c.byModule[moduleID]
	all = make([]ProgrammeMembership, 0, len(members))
	others = make([]ProgrammeMembership, 0, len(members))
	for _, m := range members {
		p := c.programmes[c.progByID[m.ProgrammeID]]
		pm := ProgrammeMembership{
			ProgrammeID:    p.ID,
			Name:           p.Name,
			Subtitle:       p.Subtitle(),
			Stage:          m.Stage,
			Classification: m.Classification,
		}
		all = append(all, pm)
		if p.ID != programmeID {
			others = append(others, pm)
		}
	}
	return all, others
}
