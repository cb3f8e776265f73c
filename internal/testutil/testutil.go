// Package testutil provides shared test fixtures: a small catalog written out
// as CSV artifacts, and the same catalog as typed records.
package testutil

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/syllabus/internal/catalog"
	"github.com/starford/syllabus/internal/models"
	"github.com/starford/syllabus/internal/storage"
)

// Fixture tables, keyed by file name. COMP10010 sits in both programmes,
// COMP30020 only in CS101 and BUS10010 only in BUS200. The last membership
// row names a module that does not exist. COMP20010 is a prerequisite of
// COMP30020 and COMP30030, and COMP30030 lists BUS10010 as similar from
// another school.
var Fixture = map[string][][]string{
	"majors_results.csv": {
		{"major_id", "major_name", "rank"},
		{"CS101", "Computer Science", "1"},
		{"BUS200", "Business and Computing", "2"},
	},
	"majors_metadata.csv": {
		{"major_id", "faculty", "award", "stage_count", "level", "duration", "attendance", "url"},
		{"CS101", "Science", "BSc", "3", "Undergraduate", "4 Years", "Full Time", "https://example.edu/programmes/cs101"},
		{"BUS200", "Business", "BComm", "", "Undergraduate", "3 Years", "Part Time", ""},
	},
	"modules_by_major.csv": {
		{"major_id", "module_id", "stage", "classification"},
		{"CS101", "COMP10010", "1", "Core"},
		{"CS101", "COMP20010", "2", "core"},
		{"CS101", "COMP30020", "3", "Option"},
		{"CS101", "COMP30030", "3", "core"},
		{"BUS200", "COMP10010", "1", "option"},
		{"BUS200", "BUS10010", "1", "core"},
		{"BUS200", "COMP20010", "2", "Optional"},
		{"BUS200", "GHOST0001", "1", "core"},
	},
	"module_details.csv": {
		{"module_id", "title", "description", "credits", "trimester", "coordinator", "school", "prerequisites", "corequisites", "incompatibilities", "learning_requirements", "similar_modules", "similar_different_school"},
		{"COMP10010", "Introduction to Programming", "Variables, control flow and functions.", "5", "Autumn", "Dr Byrne", "Computer Science", "", "", "", "", `[{"module_id":"COMP20010","score":0.6}]`, ""},
		{"COMP20010", "Data Structures", "Lists, trees and hash tables.", "5", "Spring", "Dr Byrne", "Computer Science", `[{"modules":["COMP10010"],"condition":"pass"}]`, "", "", "", "COMP10010:0.6;COMP30020:0.8", ""},
		{"COMP30020", "Algorithms", "Sorting, graphs and complexity.", "10", "Autumn", "Prof Okafor", "Computer Science", `["COMP20010","COMP99999"]`, "", "Not available to visiting students", "", `[{"module_id":"COMP20010","score":0.8},{"module_id":"COMP30030","score":0.5}]`, ""},
		{"COMP30030", "Machine Learning", "Supervised and unsupervised learning.", "10", "Spring", "", "Computer Science", `["COMP20010"]`, "", "", "Leaving Certificate Maths H4", "", `[["BUS10010", 0.3]]`},
		{"BUS10010", "Accounting Basics", "Double-entry bookkeeping.", "5", "Autumn", "Ms Walsh", "Business", "", "", "", "", "", ""},
	},
}

// WriteCSV writes rows as a CSV file under dir.
func WriteCSV(t *testing.T, dir, name string, rows [][]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatal(err)
	}
}

// FixtureDir writes the fixture tables into a temporary directory.
func FixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, rows := range Fixture {
		WriteCSV(t, dir, name, rows)
	}
	return dir
}

// FixtureStore returns the fixture directory and a CSV provider over it.
func FixtureStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := FixtureDir(t)
	store, err := storage.NewCSVDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// FixtureSQLite writes the fixture tables into dir/name as a SQLite database.
// Table names are the file names without ".csv"; every column is TEXT.
func FixtureSQLite(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	for file, rows := range Fixture {
		table := strings.TrimSuffix(file, ".csv")
		cols := make([]string, len(rows[0]))
		marks := make([]string, len(rows[0]))
		for i, c := range rows[0] {
			cols[i] = fmt.Sprintf("%q TEXT", c)
			marks[i] = "?"
		}
		if _, err := conn.Exec(fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(cols, ", "))); err != nil {
			t.Fatal(err)
		}
		insert := fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, strings.Join(marks, ", "))
		for _, row := range rows[1:] {
			args := make([]any, len(row))
			for i, v := range row {
				args[i] = v
			}
			if _, err := conn.Exec(insert, args...); err != nil {
				t.Fatal(err)
			}
		}
	}
	return path
}

// Input is the fixture as typed records, as the loader would build it.
func Input() catalog.Input {
	core, option := models.ClassificationCore, models.ClassificationOption
	return catalog.Input{
		Programmes: []models.Programme{
			{ID: "CS101", Name: "Computer Science", Faculty: "Science", Award: "BSc", StageCount: 3,
				Level: "Undergraduate", Duration: "4 Years", Attendance: "Full Time", URL: "https://example.edu/programmes/cs101"},
			{ID: "BUS200", Name: "Business and Computing", Faculty: "Business", Award: "BComm",
				Level: "Undergraduate", Duration: "3 Years", Attendance: "Part Time"},
		},
		Modules: []models.Module{
			{ID: "COMP10010", Title: "Introduction to Programming", Description: "Variables, control flow and functions.", Credits: 5,
				Trimester: "Autumn", Coordinator: "Dr Byrne", School: "Computer Science",
				Similar: []models.SimilarityEdge{{From: "COMP10010", To: "COMP20010", Score: 0.6}}},
			{ID: "COMP20010", Title: "Data Structures", Description: "Lists, trees and hash tables.", Credits: 5,
				Trimester: "Spring", Coordinator: "Dr Byrne", School: "Computer Science",
				Constraints: []models.Constraint{{Kind: models.KindPrerequisite, ModuleIDs: []string{"COMP10010"}, Condition: "pass"}},
				Similar: []models.SimilarityEdge{
					{From: "COMP20010", To: "COMP10010", Score: 0.6},
					{From: "COMP20010", To: "COMP30020", Score: 0.8},
				}},
			{ID: "COMP30020", Title: "Algorithms", Description: "Sorting, graphs and complexity.", Credits: 10,
				Trimester: "Autumn", Coordinator: "Prof Okafor", School: "Computer Science",
				Constraints: []models.Constraint{
					{Kind: models.KindPrerequisite, ModuleIDs: []string{"COMP20010", "COMP99999"}},
					{Kind: models.KindIncompatibility, Condition: "Not available to visiting students"},
				},
				Similar: []models.SimilarityEdge{
					{From: "COMP30020", To: "COMP20010", Score: 0.8},
					{From: "COMP30020", To: "COMP30030", Score: 0.5},
				}},
			{ID: "COMP30030", Title: "Machine Learning", Description: "Supervised and unsupervised learning.", Credits: 10,
				Trimester: "Spring", School: "Computer Science",
				Constraints: []models.Constraint{
					{Kind: models.KindPrerequisite, ModuleIDs: []string{"COMP20010"}},
					{Kind: models.KindLearningRequirement, Condition: "Leaving Certificate Maths H4"},
				},
				Similar: []models.SimilarityEdge{
					{From: "COMP30030", To: "BUS10010", Score: 0.3, Scope: models.ScopeDifferentSchool},
				}},
			{ID: "BUS10010", Title: "Accounting Basics", Description: "Double-entry bookkeeping.", Credits: 5,
				Trimester: "Autumn", Coordinator: "Ms Walsh", School: "Business"},
		},
		Memberships: []models.Membership{
			{ProgrammeID: "CS101", ModuleID: "COMP10010", Stage: "1", Classification: core},
			{ProgrammeID: "CS101", ModuleID: "COMP20010", Stage: "2", Classification: core},
			{ProgrammeID: "CS101", ModuleID: "COMP30020", Stage: "3", Classification: option},
			{ProgrammeID: "CS101", ModuleID: "COMP30030", Stage: "3", Classification: core},
			{ProgrammeID: "BUS200", ModuleID: "COMP10010", Stage: "1", Classification: option},
			{ProgrammeID: "BUS200", ModuleID: "BUS10010", Stage: "1", Classification: core},
			{ProgrammeID: "BUS200", ModuleID: "COMP20010", Stage: "2", Classification: option},
			{ProgrammeID: "BUS200", ModuleID: "GHOST0001", Stage: "1", Classification: core},
		},
		Fingerprint: "fixture",
	}
}

// Catalog builds the fixture catalog with default options.
func Catalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.New(Input(), catalog.DefaultOptions())
}
