package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/syllabus/internal/apperr"
	"github.com/starford/syllabus/internal/checksum"
)

// SQLite implements Provider over a database file holding one table per
// artifact. The file is opened read-only.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens the database at path. A missing file is a missing artifact.
func OpenSQLite(path string) (*SQLite, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve sqlite path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &apperr.MissingArtifactError{Artifact: filepath.Base(abs), Location: filepath.Dir(abs)}
		}
		return nil, fmt.Errorf("storage: stat sqlite: %w", err)
	}
	conn, err := sql.Open("sqlite3", "file:"+abs+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	return &SQLite{conn: conn, path: abs}, nil
}

// Location returns the database path.
func (s *SQLite) Location() string { return s.path }

// Close closes the underlying connection.
func (s *SQLite) Close() error { return s.conn.Close() }

// ReadTable reads every row of the named table or view as text.
func (s *SQLite) ReadTable(ctx context.Context, name string) (*Table, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, name).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("storage: lookup table %s: %w", name, err)
	}
	if n == 0 {
		return nil, &apperr.MissingArtifactError{Artifact: name, Location: s.path}
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT * FROM `+quoteIdent(name))
	if err != nil {
		return nil, fmt.Errorf("storage: query %s: %w", name, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("storage: columns %s: %w", name, err)
	}

	var (
		out [][]string
		buf bytes.Buffer
	)
	cells := make([]sql.NullString, len(header))
	dest := make([]any, len(header))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("storage: scan %s: %w", name, err)
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = c.String
			buf.WriteString(c.String)
			buf.WriteByte(0x1f)
		}
		buf.WriteByte(0x1e)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: rows %s: %w", name, err)
	}

	buf.WriteString(strings.Join(header, ","))
	return NewTable(name, header, out, checksum.Sum(buf.Bytes())), nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
