package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/syllabus/internal/apperr"
	"github.com/starford/syllabus/internal/checksum"
)

// CSVDir implements Provider over a directory of <name>.csv files.
type CSVDir struct {
	root string // absolute path to the data directory
}

// NewCSVDir creates a provider rooted at the given directory, which must exist.
func NewCSVDir(root string) (*CSVDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &apperr.MissingArtifactError{Artifact: "data directory", Location: abs}
		}
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &CSVDir{root: abs}, nil
}

// Location returns the data directory.
func (d *CSVDir) Location() string { return d.root }

// Close is a no-op; files are opened per read.
func (d *CSVDir) Close() error { return nil }

// safePath resolves a file name against the root and rejects anything that
// escapes it.
func (d *CSVDir) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(d.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes data root: %s", rel)
	}
	return abs, nil
}

// ReadTable reads <name>.csv. The first record is the header.
func (d *CSVDir) ReadTable(_ context.Context, name string) (*Table, error) {
	file := name
	if filepath.Ext(file) == "" {
		file += ".csv"
	}
	abs, err := d.safePath(file)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &apperr.MissingArtifactError{Artifact: file, Location: d.root}
		}
		return nil, fmt.Errorf("storage: read %s: %w", file, err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &apperr.SchemaError{Artifact: name, Column: "header row"}
		}
		return nil, fmt.Errorf("storage: parse %s header: %w", file, err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", file, err)
	}

	return NewTable(name, header, rows, checksum.Sum(data)), nil
}
