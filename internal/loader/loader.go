// Package loader reads the four lookup tables from an artifact source and
// builds an immutable catalog from them.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/sync/errgroup"

	"github.com/starford/syllabus/internal/catalog"
	"github.com/starford/syllabus/internal/checksum"
	"github.com/starford/syllabus/internal/models"
	"github.com/starford/syllabus/internal/parser"
	"github.com/starford/syllabus/internal/storage"
)

// Tables names the artifacts to read. For the CSV provider these are file
// names, for SQLite table names.
type Tables struct {
	Results    string
	Metadata   string
	Membership string
	Details    string
}

// DefaultTables returns the artifact names produced by the upstream pipeline.
func DefaultTables() Tables {
	return Tables{
		Results:    "majors_results.csv",
		Metadata:   "majors_metadata.csv",
		Membership: "modules_by_major.csv",
		Details:    "module_details.csv",
	}
}

// Options configures a load.
type Options struct {
	Tables  Tables
	Catalog catalog.Options
	// Now stamps the catalog; defaults to time.Now.
	Now func() time.Time
}

// constraintColumns maps module-details columns to the constraint kind they hold.
var constraintColumns = []struct {
	col  string
	kind models.ConstraintKind
}{
	{"prerequisites", models.KindPrerequisite},
	{"corequisites", models.KindCorequisite},
	{"incompatibilities", models.KindIncompatibility},
	{"learning_requirements", models.KindLearningRequirement},
}

// alias lists the column names the upstream export pipeline has used for a
// column this loader reads.
type alias struct {
	column string
	alts   []string
}

var (
	resultsAliases = []alias{
		{"major_id", []string{"major_code"}},
		{"major_name", []string{"result_title", "programme_title"}},
		{"search_text", []string{"search_blob"}},
	}
	metadataAliases = []alias{
		{"major_id", []string{"major_code"}},
		{"name", []string{"programme_title"}},
		{"award", []string{"programme_award"}},
		{"level", []string{"programme_level"}},
		{"duration", []string{"programme_duration"}},
		{"attendance", []string{"programme_attendance"}},
		{"url", []string{"programme_url"}},
	}
	membershipAliases = []alias{
		{"major_id", []string{"major_code"}},
		{"module_id", []string{"module_code"}},
		{"stage", []string{"sort_stage", "module_stage"}},
		{"classification", []string{"module_type"}},
	}
	detailsAliases = []alias{
		{"module_id", []string{"module_code"}},
		{"title", []string{"module_title"}},
		{"description", []string{"module_description"}},
		{"credits", []string{"module_credits"}},
		{"trimester", []string{"module_trimester"}},
		{"coordinator", []string{"module_coordinator_name"}},
		{"level", []string{"module_level"}},
		{"school", []string{"module_school"}},
		{"prerequisites", []string{"has_prerequisite_modules"}},
		{"corequisites", []string{"has_corequisite_modules"}},
		{"incompatibilities", []string{"has_incompatible_modules"}},
		{"learning_requirements", []string{"has_learning_requirement_modules"}},
		{"similar_same_school", []string{"top_n_modules_same_school"}},
		{"similar_different_school", []string{"top_n_modules_different_school"}},
	}
)

func applyAliases(t *storage.Table, aliases []alias) {
	for _, a := range aliases {
		t.Alias(a.column, a.alts...)
	}
}

type tableSet struct {
	results, metadata, membership, details *storage.Table
}

// Load reads every table and builds a catalog. It fails with a
// MissingArtifactError when a table is absent and a SchemaError when a
// required column is missing. Rows that fail validation are dropped with a
// warning and counted in the catalog report.
func Load(ctx context.Context, p storage.Provider, opts Options, logger *slog.Logger) (*catalog.Catalog, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tables == (Tables{}) {
		opts.Tables = DefaultTables()
	}
	start := opts.Now()

	ts, err := readAll(ctx, p, opts.Tables)
	if err != nil {
		return nil, err
	}
	applyAliases(ts.results, resultsAliases)
	applyAliases(ts.metadata, metadataAliases)
	applyAliases(ts.membership, membershipAliases)
	applyAliases(ts.details, detailsAliases)
	if err := ts.checkSchema(); err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}

	b := &builder{logger: logger}
	in := catalog.Input{
		Programmes:  b.programmes(ts.results, ts.metadata),
		Modules:     b.modules(ts.details),
		Memberships: b.memberships(ts.membership),
		Fingerprint: checksum.Combine(map[string]string{
			"results":    ts.results.Checksum,
			"metadata":   ts.metadata.Checksum,
			"membership": ts.membership.Checksum,
			"details":    ts.details.Checksum,
		}),
		LoadedAt: opts.Now().UTC(),
	}
	in.DroppedRows = b.dropped

	cat := catalog.New(in, opts.Catalog)
	r := cat.Stats().Report
	logger.Info("loader: catalog built",
		slog.String("source", p.Location()),
		slog.Int("programmes", r.Programmes),
		slog.Int("modules", r.Modules),
		slog.Int("memberships", r.Memberships),
		slog.Int("dropped_rows", r.DroppedRows),
		slog.Int("dropped_memberships", r.DroppedMemberships),
		slog.Int("unresolved_refs", r.UnresolvedRefs),
		slog.Duration("took", opts.Now().Sub(start)))
	if r.DroppedMemberships > 0 {
		logger.Warn("loader: membership rows reference unknown programmes or modules",
			slog.Int("count", r.DroppedMemberships))
	}
	return cat, nil
}

// readAll reads the four tables concurrently.
func readAll(ctx context.Context, p storage.Provider, names Tables) (tableSet, error) {
	var ts tableSet
	g, gctx := errgroup.WithContext(ctx)
	read := func(name string, dst **storage.Table) {
		g.Go(func() error {
			t, err := p.ReadTable(gctx, name)
			if err != nil {
				return fmt.Errorf("loader: read %s: %w", name, err)
			}
			*dst = t
			return nil
		})
	}
	read(names.Results, &ts.results)
	read(names.Metadata, &ts.metadata)
	read(names.Membership, &ts.membership)
	read(names.Details, &ts.details)
	if err := g.Wait(); err != nil {
		return tableSet{}, err
	}
	return ts, nil
}

func (ts tableSet) checkSchema() error {
	if err := ts.results.Require("major_id", "major_name"); err != nil {
		return err
	}
	if err := ts.metadata.Require("major_id"); err != nil {
		return err
	}
	if err := ts.membership.Require("major_id", "module_id", "stage", "classification"); err != nil {
		return err
	}
	return ts.details.Require("module_id", "title")
}

type builder struct {
	logger  *slog.Logger
	dropped int
}

func (b *builder) drop(table string, row int, err error) {
	b.dropped++
	b.logger.Warn("loader: row dropped",
		slog.String("table", table),
		slog.Int("row", row+2), // 1-based, after the header
		slog.String("error", err.Error()))
}

// number reads an optional numeric cell. Null spellings read as zero;
// anything else that is not a finite, non-negative number is logged and
// read as zero.
func (b *builder) number(t *storage.Table, i int, col, id string) float64 {
	raw := t.Get(i, col)
	if parser.IsNull(raw) {
		return 0
	}
	f, err := parser.Number(raw)
	if err == nil && f < 0 {
		err = errors.New("negative value")
	}
	if err != nil {
		b.logger.Warn("loader: bad number ignored",
			slog.String("table", t.Name),
			slog.String("column", col),
			slog.String("id", id),
			slog.String("value", raw))
		return 0
	}
	return f
}

// text reads an optional text cell, mapping null spellings to "".
func text(t *storage.Table, i int, col string) string {
	v := t.Get(i, col)
	if parser.IsNull(v) {
		return ""
	}
	return v
}

type programmeMeta struct {
	name, faculty, award, level, duration, attendance, url string
	stages                                                 int
}

func (b *builder) programmes(results, metadata *storage.Table) []models.Programme {
	meta := make(map[string]programmeMeta, metadata.Len())
	for i := range metadata.Len() {
		id := metadata.Get(i, "major_id")
		if id == "" {
			continue
		}
		m := programmeMeta{
			name:       text(metadata, i, "name"),
			faculty:    text(metadata, i, "faculty"),
			award:      text(metadata, i, "award"),
			level:      text(metadata, i, "level"),
			duration:   text(metadata, i, "duration"),
			attendance: text(metadata, i, "attendance"),
			url:        text(metadata, i, "url"),
			stages:     int(b.number(metadata, i, "stage_count", id)),
		}
		if err := validation.Validate(m.url, is.URL); err != nil {
			b.logger.Warn("loader: bad programme url ignored",
				slog.String("major_id", id), slog.String("value", m.url))
			m.url = ""
		}
		if _, dup := meta[id]; !dup {
			meta[id] = m
		}
	}

	out := make([]models.Programme, 0, results.Len())
	for i := range results.Len() {
		p := models.Programme{
			ID:         results.Get(i, "major_id"),
			Name:       text(results, i, "major_name"),
			SearchText: text(results, i, "search_text"),
		}
		if m, ok := meta[p.ID]; ok {
			if p.Name == "" {
				p.Name = m.name
			}
			p.Faculty, p.Award, p.StageCount = m.faculty, m.award, m.stages
			p.Level, p.Duration, p.Attendance, p.URL = m.level, m.duration, m.attendance, m.url
		}
		if err := p.Validate(); err != nil {
			b.drop(results.Name, i, err)
			continue
		}
		out = append(out, p)
	}
	return out
}

func (b *builder) modules(details *storage.Table) []models.Module {
	out := make([]models.Module, 0, details.Len())
	for i := range details.Len() {
		m := models.Module{
			ID:          details.Get(i, "module_id"),
			Title:       text(details, i, "title"),
			Description: text(details, i, "description"),
			Trimester:   text(details, i, "trimester"),
			Coordinator: text(details, i, "coordinator"),
			Level:       text(details, i, "level"),
			School:      text(details, i, "school"),
		}
		m.Credits = b.number(details, i, "credits", m.ID)
		for _, cc := range constraintColumns {
			m.Constraints = append(m.Constraints, parser.Constraints(cc.kind, details.Get(i, cc.col))...)
		}
		m.Similar = parser.Similar(m.ID, details.Get(i, "similar_modules"))
		m.Similar = append(m.Similar, scoped(parser.Similar(m.ID, details.Get(i, "similar_same_school")), models.ScopeSameSchool)...)
		m.Similar = append(m.Similar, scoped(parser.Similar(m.ID, details.Get(i, "similar_different_school")), models.ScopeDifferentSchool)...)

		if err := m.Validate(); err != nil {
			b.drop(details.Name, i, err)
			continue
		}
		out = append(out, m)
	}
	return out
}

func scoped(edges []models.SimilarityEdge, scope models.SchoolScope) []models.SimilarityEdge {
	for i := range edges {
		edges[i].Scope = scope
	}
	return edges
}

func (b *builder) memberships(t *storage.Table) []models.Membership {
	out := make([]models.Membership, 0, t.Len())
	for i := range t.Len() {
		class, err := models.ParseClassification(t.Get(i, "classification"))
		if err != nil {
			b.drop(t.Name, i, err)
			continue
		}
		m := models.Membership{
			ProgrammeID:    t.Get(i, "major_id"),
			ModuleID:       t.Get(i, "module_id"),
			Stage:          normalizeStage(text(t, i, "stage")),
			Classification: class,
		}
		if err := m.Validate(); err != nil {
			b.drop(t.Name, i, err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// normalizeStage writes whole-number stages without a fraction, so "3.0"
// from a float column reads as "3".
func normalizeStage(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return s
	}
	return strconv.FormatInt(int64(f), 10)
}
