package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/syllabus/internal/apperr"
)

func tempDir(t *testing.T, files map[string]string) (*CSVDir, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	d, err := NewCSVDir(dir)
	if err != nil {
		t.Fatalf("NewCSVDir: %v", err)
	}
	return d, dir
}

func TestCSVDir_ReadTable(t *testing.T) {
	d, _ := tempDir(t, map[string]string{
		"majors.csv": "\ufeffMajor ID,major_name,Extra Column\nCS,Computer Science,x\nMA,\"Maths, Pure\",y\n",
	})

	tbl, err := d.ReadTable(context.Background(), "majors")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("rows = %d, want 2", tbl.Len())
	}
	if err := tbl.Require("major_id", "major_name"); err != nil {
		t.Errorf("Require: %v", err)
	}
	if !tbl.Has("extra_column") {
		t.Errorf("columns = %v, want normalised extra_column", tbl.Columns)
	}
	if got := tbl.Get(1, "major_name"); got != "Maths, Pure" {
		t.Errorf("Get = %q", got)
	}
	if got := tbl.Get(0, "missing"); got != "" {
		t.Errorf("absent column = %q, want empty", got)
	}
	if tbl.Checksum == "" {
		t.Error("expected checksum")
	}
}

func TestCSVDir_RaggedRows(t *testing.T) {
	d, _ := tempDir(t, map[string]string{
		"t.csv": "a,b,c\n1,2\n1,2,3,4\n",
	})
	tbl, err := d.ReadTable(context.Background(), "t")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if got := tbl.Get(0, "c"); got != "" {
		t.Errorf("short row cell = %q, want empty", got)
	}
	if got := tbl.Get(1, "c"); got != "3" {
		t.Errorf("long row cell = %q, want 3", got)
	}
}

func TestCSVDir_MissingFile(t *testing.T) {
	d, _ := tempDir(t, nil)
	_, err := d.ReadTable(context.Background(), "module_details")
	var mae *apperr.MissingArtifactError
	if !errors.As(err, &mae) {
		t.Fatalf("err = %v, want MissingArtifactError", err)
	}
	if mae.Artifact != "module_details.csv" {
		t.Errorf("artifact = %q", mae.Artifact)
	}
}

func TestCSVDir_EmptyFile(t *testing.T) {
	d, _ := tempDir(t, map[string]string{"empty.csv": ""})
	_, err := d.ReadTable(context.Background(), "empty")
	if !errors.Is(err, apperr.ErrSchema) {
		t.Errorf("err = %v, want ErrSchema", err)
	}
}

func TestCSVDir_RejectsTraversal(t *testing.T) {
	d, _ := tempDir(t, nil)
	if _, err := d.ReadTable(context.Background(), "../outside"); err == nil {
		t.Error("expected traversal to be rejected")
	}
}

func TestNewCSVDir_MissingRoot(t *testing.T) {
	_, err := NewCSVDir(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, apperr.ErrMissingArtifact) {
		t.Errorf("err = %v, want ErrMissingArtifact", err)
	}
}

func TestTableRequire(t *testing.T) {
	tbl := NewTable("majors", []string{"major_id"}, nil, "")
	err := tbl.Require("major_id", "major_name")
	var se *apperr.SchemaError
	if !errors.As(err, &se) || se.Column != "major_name" {
		t.Errorf("err = %v, want SchemaError on major_name", err)
	}
}

func TestNormalizeColumn(t *testing.T) {
	tests := map[string]string{
		"Major ID":              "major_id",
		"  module_id ":          "module_id",
		"Learning-Requirements": "learning_requirements",
		"similar__modules":      "similar_modules",
	}
	for in, want := range tests {
		if got := NormalizeColumn(in); got != want {
			t.Errorf("NormalizeColumn(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTableAlias(t *testing.T) {
	tbl := NewTable("t", []string{"major_code", "module_code", "module_id"}, [][]string{{"CS", "OLD", "NEW"}}, "")

	tbl.Alias("major_id", "programme_code", "Major Code")
	if err := tbl.Require("major_id"); err != nil {
		t.Fatalf("alias not applied: %v", err)
	}
	if got := tbl.Get(0, "major_id"); got != "CS" {
		t.Errorf("major_id = %q, want CS", got)
	}

	// An existing canonical column wins over its alternatives.
	tbl.Alias("module_id", "module_code")
	if got := tbl.Get(0, "module_id"); got != "NEW" {
		t.Errorf("module_id = %q, want NEW", got)
	}

	tbl.Alias("title", "module_title")
	if tbl.Has("title") {
		t.Error("alias with no present alternative should not add a column")
	}
}
