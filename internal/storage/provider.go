// Package storage reads the upstream lookup tables from an artifact source.
package storage

import (
	"context"
	"strings"

	"github.com/starford/syllabus/internal/apperr"
)

// Provider is the interface for artifact sources.
type Provider interface {
	// ReadTable returns the named table. A missing table yields
	// *apperr.MissingArtifactError.
	ReadTable(ctx context.Context, name string) (*Table, error)
	// Location describes where tables are read from (for logs and errors).
	Location() string
	Close() error
}

// Table is a fully read artifact. Column names are normalised to
// lower_snake_case; columns nobody asks for are simply never read.
type Table struct {
	Name     string
	Columns  []string
	Rows     [][]string
	Checksum string

	index map[string]int
}

// NewTable builds a table from a header row and data rows.
func NewTable(name string, header []string, rows [][]string, sum string) *Table {
	t := &Table{
		Name:     name,
		Columns:  make([]string, len(header)),
		Rows:     rows,
		Checksum: sum,
		index:    make(map[string]int, len(header)),
	}
	for i, h := range header {
		col := NormalizeColumn(h)
		t.Columns[i] = col
		if _, dup := t.index[col]; !dup {
			t.index[col] = i
		}
	}
	return t
}

// NormalizeColumn lower-cases a header and joins words with underscores.
func NormalizeColumn(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}

// Require checks that every column is present.
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if _, ok := t.index[c]; !ok {
			return &apperr.SchemaError{Artifact: t.Name, Column: c}
		}
	}
	return nil
}

// Has reports whether the column exists.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Get returns the trimmed cell at row i, column col. Absent columns and
// short rows read as empty.
func (t *Table) Get(i int, col string) string {
	c, ok := t.index[col]
	if !ok || i < 0 || i >= len(t.Rows) || c >= len(t.Rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][c])
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Alias makes a column readable as canonical when the table has no column of
// that name, using the first alternative that is present.
func (t *Table) Alias(canonical string, alternatives ...string) {
	if _, ok := t.index[canonical]; ok {
		return
	}
	for _, alt := range alternatives {
		if i, ok := t.index[NormalizeColumn(alt)]; ok {
			t.index[canonical] = i
			return
		}
	}
}
