// Package config reads linkage configuration from a YAML file.
// Every field is optional; accessors fall back to defaults for unset values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/linkage/internal/pagination"
	"github.com/roach88/linkage/internal/store"
)

var (
	// ErrInvalidValue is returned when a config value is invalid.
	ErrInvalidValue = errors.New("invalid config value")
	// ErrUnknownKey is returned when getting an unknown config key.
	ErrUnknownKey = errors.New("unknown config key")
)

// Database selects the SQLite driver and file.
type Database struct {
	Driver *string `yaml:"driver,omitempty"`
	Path   *string `yaml:"path,omitempty"`
}

// Pagination holds the default page and the page size cap.
type Pagination struct {
	Number  *int64 `yaml:"number,omitempty"`
	Size    *int64 `yaml:"size,omitempty"`
	MaxSize *int64 `yaml:"max_size,omitempty"`
}

// Schema locates the CUE resource schemas.
type Schema struct {
	Dir *string `yaml:"dir,omitempty"`
}

// Log holds logging options.
type Log struct {
	Level *string `yaml:"level,omitempty"`
}

// Defaults applied when not configured.
const (
	DefaultDriver      = string(store.DriverCGO)
	DefaultPath        = "linkage.db"
	DefaultPageNumber  = 1
	DefaultPageSize    = 10
	DefaultMaxPageSize = 100
	DefaultSchemaDir   = "schema"
	DefaultLogLevel    = "info"
)

// MaxMaxPageSize bounds pagination.max_size.
const MaxMaxPageSize = 10000

// DefaultFile is the config file read when --config is not given.
const DefaultFile = "linkage.yaml"

var logLevels = []string{"debug", "info", "warn", "error"}

// Config contains configuration for linkage.
type Config struct {
	Database   Database   `yaml:"database,omitempty"`
	Pagination Pagination `yaml:"pagination,omitempty"`
	Schema     Schema     `yaml:"schema,omitempty"`
	Log        Log        `yaml:"log,omitempty"`

	// path is the file this config was loaded from
	path string
}

// Validate checks that all configured values are within acceptable bounds.
// Returns nil if all values are valid or not set (defaults will be used).
func (c *Config) Validate() error {
	if c.Database.Driver != nil {
		switch store.Driver(*c.Database.Driver) {
		case store.DriverCGO, store.DriverPure:
		default:
			return fmt.Errorf("%w: database.driver must be %q or %q, got %q",
				ErrInvalidValue, store.DriverCGO, store.DriverPure, *c.Database.Driver)
		}
	}
	if c.Database.Path != nil && *c.Database.Path == "" {
		return fmt.Errorf("%w: database.path must not be empty", ErrInvalidValue)
	}
	if c.Pagination.Number != nil && *c.Pagination.Number < 1 {
		return fmt.Errorf("%w: pagination.number must be at least 1, got %d",
			ErrInvalidValue, *c.Pagination.Number)
	}
	if c.Pagination.MaxSize != nil {
		v := *c.Pagination.MaxSize
		if v < 1 || v > MaxMaxPageSize {
			return fmt.Errorf("%w: pagination.max_size must be between 1 and %d, got %d",
				ErrInvalidValue, MaxMaxPageSize, v)
		}
	}
	if c.Pagination.Size != nil {
		v := *c.Pagination.Size
		if v < 1 || v > c.MaxPageSize() {
			return fmt.Errorf("%w: pagination.size must be between 1 and %d, got %d",
				ErrInvalidValue, c.MaxPageSize(), v)
		}
	}
	if c.Log.Level != nil {
		lvl := strings.ToLower(*c.Log.Level)
		ok := false
		for _, l := range logLevels {
			ok = ok || l == lvl
		}
		if !ok {
			return fmt.Errorf("%w: log.level must be one of %s, got %q",
				ErrInvalidValue, strings.Join(logLevels, "|"), *c.Log.Level)
		}
	}
	return nil
}

// Driver returns the SQLite driver (defaults to the cgo driver).
func (c *Config) Driver() store.Driver {
	if c.Database.Driver == nil {
		return store.Driver(DefaultDriver)
	}
	return store.Driver(*c.Database.Driver)
}

// DatabasePath returns the database file (defaults to linkage.db).
func (c *Config) DatabasePath() string {
	if c.Database.Path == nil {
		return DefaultPath
	}
	return *c.Database.Path
}

// PageNumber returns the default page number (defaults to 1).
func (c *Config) PageNumber() int64 {
	if c.Pagination.Number == nil {
		return DefaultPageNumber
	}
	return *c.Pagination.Number
}

// PageSize returns the default page size (defaults to 10).
func (c *Config) PageSize() int64 {
	if c.Pagination.Size == nil {
		return min(DefaultPageSize, c.MaxPageSize())
	}
	return *c.Pagination.Size
}

// MaxPageSize returns the largest page a client may request (defaults to 100).
func (c *Config) MaxPageSize() int64 {
	if c.Pagination.MaxSize == nil {
		return DefaultMaxPageSize
	}
	return *c.Pagination.MaxSize
}

// Paginator builds the paginator described by the pagination section.
func (c *Config) Paginator() *pagination.Paginator {
	return pagination.New(pagination.Options{Number: c.PageNumber(), Size: c.PageSize()}, c.MaxPageSize())
}

// SchemaDir returns the CUE schema directory, relative to the config file
// when configured (defaults to "schema").
func (c *Config) SchemaDir() string {
	dir := DefaultSchemaDir
	if c.Schema.Dir != nil {
		dir = *c.Schema.Dir
	}
	if c.path != "" && !filepath.IsAbs(dir) {
		return filepath.Join(filepath.Dir(c.path), dir)
	}
	return dir
}

// LogLevel returns the configured log level name (defaults to info).
func (c *Config) LogLevel() string {
	if c.Log.Level == nil {
		return DefaultLogLevel
	}
	return strings.ToLower(*c.Log.Level)
}

// Path returns the file this config was loaded from, empty when none.
func (c *Config) Path() string {
	return c.path
}

// Load reads configuration from path. A missing file yields defaults.
// An empty path reads DefaultFile from the working directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config file %s: %w", path, err)
	}
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Get returns the effective value of a dotted key, e.g. "pagination.size".
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "database.driver":
		return string(c.Driver()), nil
	case "database.path":
		return c.DatabasePath(), nil
	case "pagination.number":
		return fmt.Sprint(c.PageNumber()), nil
	case "pagination.size":
		return fmt.Sprint(c.PageSize()), nil
	case "pagination.max_size":
		return fmt.Sprint(c.MaxPageSize()), nil
	case "schema.dir":
		return c.SchemaDir(), nil
	case "log.level":
		return c.LogLevel(), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Keys lists every key understood by Get.
func Keys() []string {
	return []string{
		"database.driver",
		"database.path",
		"pagination.number",
		"pagination.size",
		"pagination.max_size",
		"schema.dir",
		"log.level",
	}
}
