package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/syllabus/internal/loader"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestDataConfig_EmptyFormatDefaultsCSV(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Data.Format = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty format should default to csv: %v", err)
	}
	if cfg.Data.Format != FormatCSV {
		t.Errorf("format = %q, want %q", cfg.Data.Format, FormatCSV)
	}
}

func TestDataConfig_InvalidFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Data.Format = "parquet"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("unknown format should fail validation")
	}
	if !strings.HasPrefix(err.Error(), "data:") {
		t.Errorf("error should name the section: %v", err)
	}
}

func TestDataConfig_SQLiteNeedsFile(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Data.Format = FormatSQLite
	cfg.Data.SQLiteFile = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("sqlite format without a file should fail")
	}
}

func TestDataConfig_NegativeDebounce(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Data.WatchDebounce = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative debounce should fail")
	}
}

func TestDataConfig_LoaderTables(t *testing.T) {
	cfg := NewDefaultConfig()
	if got := cfg.Data.LoaderTables(); got != loader.DefaultTables() {
		t.Errorf("csv tables = %+v", got)
	}

	cfg.Data.Format = FormatSQLite
	got := cfg.Data.LoaderTables()
	want := loader.Tables{
		Results:    "majors_results",
		Metadata:   "majors_metadata",
		Membership: "modules_by_major",
		Details:    "module_details",
	}
	if got != want {
		t.Errorf("sqlite tables = %+v, want %+v", got, want)
	}
}

func TestDataConfig_SQLitePath(t *testing.T) {
	c := DataConfig{Dir: "data", SQLiteFile: "catalog.db"}
	if got := c.SQLitePath(); got != "data/catalog.db" {
		t.Errorf("relative path = %q", got)
	}
	c.SQLiteFile = "/srv/catalog.db"
	if got := c.SQLitePath(); got != "/srv/catalog.db" {
		t.Errorf("absolute path = %q", got)
	}
}

func TestQueryConfig_DefaultAboveMax(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Query.DefaultPageSize = 50
	cfg.Query.MaxPageSize = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("default page size above max should fail")
	}
}

func TestQueryConfig_SchoolSimilarLimit(t *testing.T) {
	cfg := NewDefaultConfig()
	if got := cfg.Query.CatalogOptions().SchoolSimilarLimit; got != 5 {
		t.Errorf("default school similar limit = %d, want 5", got)
	}

	cfg.Query.SchoolSimilarLimit = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero school limit should fall back to the default: %v", err)
	}

	cfg.Query.SchoolSimilarLimit = cfg.Query.SimilarLimit + 1
	if err := cfg.Validate(); err == nil {
		t.Error("school limit above the similar limit should fail")
	}
}

func TestHTTPConfig_PortRange(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("out of range port should fail")
	}
	if got := (&HTTPConfig{Port: 9000}).Address(); got != ":9000" {
		t.Errorf("address = %q", got)
	}
}
