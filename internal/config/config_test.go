package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadInDir(t *testing.T, dir string) (*Config, error) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadInDir(t, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "catalog.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "pregen", cfg.Pregen.Dir)
	assert.Equal(t, ",", cfg.Pregen.Delimiter)
	assert.Equal(t, 4, cfg.Pregen.MaxConcurrent)
	assert.Equal(t, "batches", cfg.Batch.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
store:
  driver: postgres
  database_url: postgres://localhost/catalog
pregen:
  dir: /data/pregen
  delimiter: "|"
log:
  level: debug
  format: console
`), 0o644))

	cfg, err := loadInDir(t, dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/catalog", cfg.Store.DatabaseURL)
	assert.Equal(t, "/data/pregen", cfg.Pregen.Dir)
	assert.Equal(t, '|', cfg.DelimiterRune())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CATALOG_STORE_DRIVER", "postgres")
	t.Setenv("CATALOG_STORE_DATABASE_URL", "postgres://db/catalog")

	cfg, err := loadInDir(t, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://db/catalog", cfg.Store.DatabaseURL)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "catalog.db"},
		Pregen: PregenConfig{Delimiter: ","},
	}
	require.NoError(t, cfg.Validate())

	cfg.Store.Driver = "oracle"
	require.Error(t, cfg.Validate())

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	require.Error(t, cfg.Validate())

	cfg.Store.DatabaseURL = "postgres://db/catalog"
	cfg.Pregen.Delimiter = "||"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single character")
}

func TestDelimiterRune_Default(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, ',', cfg.DelimiterRune())
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouty", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
