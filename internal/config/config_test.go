package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "", cfg.DBURL)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 4, cfg.FetchConcurrency)
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":"9000","tablesDir":"decl","fetchTimeout":"5s","fetchRetries":1}`), 0o600))

	t.Setenv("TOLA_TABLES_DIR", "from-env")
	t.Setenv("TOLA_AUTO_MIGRATE", "yes")

	cfg, err := Load(path, []string{"-port", "7000", "-fetch-retries=2", "-uploads", "up"})
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)          // флаг
	assert.Equal(t, "from-env", cfg.TablesDir) // ENV поверх JSON
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout) // JSON
	assert.Equal(t, 2, cfg.FetchRetries)
	assert.Equal(t, "up", cfg.UploadsDir)
}

func TestLoadConfigFlag(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(other, []byte(`{"dbUrl":"postgres://x"}`), 0o600))

	cfg, err := Load(filepath.Join(dir, "none.json"), []string{"-config", other})
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", cfg.DBURL)
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err := Load(path, nil)
	assert.Error(t, err)
}
