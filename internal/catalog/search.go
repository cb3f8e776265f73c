package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/starford/syllabus/internal/models"
)

// MatchRank is the tier a search hit landed in. Lower ranks sort first.
type MatchRank int

const (
	RankExact MatchRank = iota
	RankSubstring
	RankFuzzy
)

var rankNames = [...]string{"exact", "substring", "fuzzy"}

func (r MatchRank) String() string {
	if r < 0 || int(r) >= len(rankNames) {
		return "unknown"
	}
	return rankNames[r]
}

// MarshalText encodes the rank by name.
func (r MatchRank) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a rank name.
func (r *MatchRank) UnmarshalText(b []byte) error {
	for i, name := range rankNames {
		if string(b) == name {
			*r = MatchRank(i)
			return nil
		}
	}
	return fmt.Errorf("unknown match rank %q", b)
}

// ProgrammeHit is one programme search result.
type ProgrammeHit struct {
	models.Programme
	ModuleCount int       `json:"module_count"`
	Rank        MatchRank `json:"rank"`
}

// ModuleHit is one global module search result.
type ModuleHit struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Credits        float64   `json:"credits,omitempty"`
	ProgrammeCount int       `json:"programme_count"`
	Rank           MatchRank `json:"rank"`
}

type candidate struct {
	idx  int
	rank MatchRank
}

// SearchProgrammes matches query against programme names (and ids).
// An empty query returns every programme in name order.
func (c *Catalog) SearchProgrammes(query string, page, size int) Page[ProgrammeHit] {
	page, size = c.normalizePage(page, size)
	hits := rankKeys(query, c.progKeys)
	start, end := sliceBounds(page, size, len(hits))

	items := make([]ProgrammeHit, 0, end-start)
	for _, h := range hits[start:end] {
		p := c.programmes[h.idx]
		items = append(items, ProgrammeHit{
			Programme:   p,
			ModuleCount: len(c.byProgramme[p.ID]),
			Rank:        h.rank,
		})
	}
	return newPage(items, len(hits), page, size)
}

// SearchModules matches query against every module title (and id),
// independent of programme.
func (c *Catalog) SearchModules(query string, page, size int) Page[ModuleHit] {
	page, size = c.normalizePage(page, size)
	hits := rankKeys(query, c.modKeys)
	start, end := sliceBounds(page, size, len(hits))

	items := make([]ModuleHit, 0, end-start)
	for _, h := range hits[start:end] {
		m := c.modules[h.idx]
		items = append(items, ModuleHit{
			ID:             m.ID,
			Title:          m.Title,
			Credits:        m.Credits,
			ProgrammeCount: len(c.byModule[m.ID]),
			Rank:           h.rank,
		})
	}
	return newPage(items, len(hits), page, size)
}

// rankKeys tiers every key against query: exact name or id, then substring
// of the searchable text, then fuzzy subsequence on the name. keys are already in name order, so
// ordering by (rank, idx) gives alphabetical order within a tier.
func rankKeys(query string, keys []searchKey) []candidate {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]candidate, 0, len(keys))
	if q == "" {
		for i := range keys {
			out = append(out, candidate{idx: i, rank: RankSubstring})
		}
		return out
	}

	var rest []int
	for i, k := range keys {
		switch {
		case k.name == q || k.id == q:
			out = append(out, candidate{idx: i, rank: RankExact})
		case strings.Contains(k.text, q):
			out = append(out, candidate{idx: i, rank: RankSubstring})
		default:
			rest = append(rest, i)
		}
	}

	if len(rest) > 0 {
		names := make([]string, len(rest))
		for j, i := range rest {
			names[j] = keys[i].name
		}
		for _, m := range fuzzy.Find(q, names) {
			out = append(out, candidate{idx: rest[m.Index], rank: RankFuzzy})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].rank != out[j].rank {
			return out[i].rank < out[j].rank
		}
		return out[i].idx < out[j].idx
	})
	return out
}
