package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/syllabus/internal/catalog"
	"github.com/starford/syllabus/internal/loader"
)

// Artifact source formats.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Data  DataConfig        `yaml:"data"`
	Query QueryConfig       `yaml:"query"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Data.Validate(); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DataConfig says where the lookup tables live and whether to watch them.
//
// Format selects the artifact source:
//   - "csv" (default): one CSV file per table inside Dir.
//   - "sqlite": one table per artifact inside Dir/SQLiteFile, opened read-only.
type DataConfig struct {
	Dir           string        `yaml:"dir"`
	Format        string        `yaml:"format"`
	SQLiteFile    string        `yaml:"sqlite_file"`
	Tables        TablesConfig  `yaml:"tables"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	if c.Format == "" {
		c.Format = FormatCSV
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Format, validation.Required, validation.In(FormatCSV, FormatSQLite)),
		validation.Field(&c.SQLiteFile, validation.When(c.Format == FormatSQLite, validation.Required)),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	return c.Tables.Validate()
}

// SQLitePath resolves the SQLite file against Dir.
func (c *DataConfig) SQLitePath() string {
	if filepath.IsAbs(c.SQLiteFile) {
		return c.SQLiteFile
	}
	return filepath.Join(c.Dir, c.SQLiteFile)
}

// LoaderTables returns the artifact names for the configured format. SQLite
// table names are the file names without their extension.
func (c *DataConfig) LoaderTables() loader.Tables {
	name := func(s string) string {
		if c.Format == FormatSQLite {
			return strings.TrimSuffix(s, filepath.Ext(s))
		}
		return s
	}
	return loader.Tables{
		Results:    name(c.Tables.Results),
		Metadata:   name(c.Tables.Metadata),
		Membership: name(c.Tables.Membership),
		Details:    name(c.Tables.Details),
	}
}

// TablesConfig names the four artifacts.
type TablesConfig struct {
	Results    string `yaml:"results"`
	Metadata   string `yaml:"metadata"`
	Membership string `yaml:"membership"`
	Details    string `yaml:"details"`
}

// Validate validates the table names.
func (c *TablesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Results, validation.Required),
		validation.Field(&c.Metadata, validation.Required),
		validation.Field(&c.Membership, validation.Required),
		validation.Field(&c.Details, validation.Required),
	)
}

// QueryConfig tunes pagination and the detail view.
type QueryConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	SimilarLimit    int `yaml:"similar_limit"`

	// SchoolSimilarLimit caps the same-school and other-school lists; zero
	// uses the catalog default.
	SchoolSimilarLimit int `yaml:"school_similar_limit"`
}

// Validate validates the query configuration.
func (c *QueryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxPageSize, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.DefaultPageSize, validation.Required, validation.Min(1), validation.Max(c.MaxPageSize)),
		validation.Field(&c.SimilarLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.SchoolSimilarLimit, validation.Min(0), validation.Max(c.SimilarLimit)),
	)
}

// CatalogOptions converts the query section for the catalog.
func (c *QueryConfig) CatalogOptions() catalog.Options {
	return catalog.Options{
		DefaultPageSize: c.DefaultPageSize,
		MaxPageSize:     c.MaxPageSize,
		SimilarLimit:    c.SimilarLimit,

		SchoolSimilarLimit: c.SchoolSimilarLimit,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	tables := loader.DefaultTables()
	opts := catalog.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Data: DataConfig{
			Dir:        "./data",
			Format:     FormatCSV,
			SQLiteFile: "catalog.db",
			Tables: TablesConfig{
				Results:    tables.Results,
				Metadata:   tables.Metadata,
				Membership: tables.Membership,
				Details:    tables.Details,
			},
			WatchDebounce: 500 * time.Millisecond,
		},
		Query: QueryConfig{
			DefaultPageSize: opts.DefaultPageSize,
			MaxPageSize:     opts.MaxPageSize,
			SimilarLimit:    opts.SimilarLimit,

			SchoolSimilarLimit: opts.SchoolSimilarLimit,
		},
	}
}
