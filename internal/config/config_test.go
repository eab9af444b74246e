package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
download_path: /tmp/ku-staging
gdb_path: /tmp/ku.duckdb
download_list:
  - "600016"
  - "600024"
chrome_path: /usr/bin/chromium
use_browser: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ku-staging", cfg.DownloadPath)
	assert.Equal(t, "/tmp/ku.duckdb", cfg.GDBPath)
	assert.Equal(t, []string{"600016", "600024"}, cfg.DownloadList)
	assert.Equal(t, "/usr/bin/chromium", cfg.ChromePath)
	assert.True(t, cfg.UseBrowser)

	// Defaults fill what the file omits.
	assert.Equal(t, DefaultCatalogURL, cfg.CatalogURL)
	assert.Equal(t, DefaultStoreName, cfg.StoreName)
	assert.Equal(t, filepath.Join("/tmp/ku-staging", "unpacked"), cfg.UnpackedPath())
}

func TestValidateMissingRequiredKeys(t *testing.T) {
	path := writeConfig(t, `gdb_path: /tmp/ku.duckdb`)
	cfg, err := Load(path)
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download_path")
}

func TestLoadMissingFile(t *testing.T) {
	// A missing file yields defaults only; validation is what fails.
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultStoreName, cfg.StoreName)
	require.Error(t, cfg.Validate())
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "download_path: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}

func TestStoreNameOverride(t *testing.T) {
	path := writeConfig(t, `
download_path: /tmp/s
gdb_path: /tmp/g.duckdb
store_name: KU_TEST
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "KU_TEST", cfg.StoreName)
}
