package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkage/internal/pagination"
	"github.com/roach88/linkage/internal/store"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "linkage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, store.DriverCGO, cfg.Driver())
	assert.Equal(t, DefaultPath, cfg.DatabasePath())
	assert.Equal(t, int64(1), cfg.PageNumber())
	assert.Equal(t, int64(10), cfg.PageSize())
	assert.Equal(t, int64(100), cfg.MaxPageSize())
	assert.Equal(t, DefaultSchemaDir, cfg.SchemaDir())
	assert.Equal(t, "info", cfg.LogLevel())
	assert.Empty(t, cfg.Path())
}

func TestLoad_Values(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  path: /tmp/blog.db
pagination:
  number: 2
  size: 25
  max_size: 50
schema:
  dir: resources
log:
  level: DEBUG
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, store.DriverPure, cfg.Driver())
	assert.Equal(t, "/tmp/blog.db", cfg.DatabasePath())
	assert.Equal(t, int64(2), cfg.PageNumber())
	assert.Equal(t, int64(25), cfg.PageSize())
	assert.Equal(t, int64(50), cfg.MaxPageSize())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "resources"), cfg.SchemaDir())
	assert.Equal(t, "debug", cfg.LogLevel())
	assert.Equal(t, path, cfg.Path())
}

func TestPageSizeDefaultRespectsMax(t *testing.T) {
	cfg, err := Load(writeConfig(t, "pagination:\n  max_size: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), cfg.PageSize())
}

func TestPaginator(t *testing.T) {
	cfg, err := Load(writeConfig(t, "pagination:\n  size: 20\n  max_size: 30\n"))
	require.NoError(t, err)

	assert.Equal(t, pagination.Options{Number: 1, Size: 20}, cfg.Paginator().Defaults())
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"driver":         "database:\n  driver: postgres\n",
		"empty path":     "database:\n  path: \"\"\n",
		"number":         "pagination:\n  number: 0\n",
		"size":           "pagination:\n  size: 0\n",
		"size above max": "pagination:\n  size: 200\n",
		"max_size":       "pagination:\n  max_size: 100000\n",
		"log level":      "log:\n  level: loud\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidValue), err.Error())
		})
	}
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(writeConfig(t, "database: [\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed config file")
}

func TestGet(t *testing.T) {
	cfg, err := Load(writeConfig(t, "pagination:\n  size: 7\n"))
	require.NoError(t, err)

	for _, key := range Keys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
	v, err := cfg.Get("pagination.size")
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	_, err = cfg.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownKey)
}
