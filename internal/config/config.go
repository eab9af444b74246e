// Package config loads the harvester configuration from config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config keys recognized in config.yaml.
const (
	cfgKeyDownloadPath = "download_path"
	cfgKeyGDBPath      = "gdb_path"
	cfgKeyCatalogURL   = "catalog_url"
	cfgKeyStoreName    = "store_name"
	cfgKeyChromePath   = "chrome_path"
	cfgKeyUseBrowser   = "use_browser"
	cfgKeyDownloadList = "download_list"
)

// DefaultCatalogURL is the public registry of per-unit shapefile archives.
const DefaultCatalogURL = "https://services.cuzk.cz/shp/ku/epsg-5514/"

// DefaultStoreName is the cumulative feature store created inside the
// geodatabase container.
const DefaultStoreName = "KU"

// Config holds application settings shared by every pipeline stage.
type Config struct {
	// DownloadPath is the staging directory for fetched archives; extracted
	// unit directories live under <DownloadPath>/unpacked.
	DownloadPath string
	// GDBPath is the geodatabase container holding the cumulative store.
	GDBPath string
	// CatalogURL is the registry index listing one archive per unit.
	CatalogURL string
	// StoreName names the cumulative feature store inside the container.
	StoreName string
	// ChromePath optionally points at a browser binary for the scripted
	// fetcher. Empty means let the launcher find one.
	ChromePath string
	// UseBrowser selects the browser-driven fetcher over plain HTTP.
	UseBrowser bool
	// DownloadList optionally restricts fetching to these unit identifiers.
	DownloadList []string
}

// UnpackedPath is the working directory tree for extracted unit layers.
func (c Config) UnpackedPath() string {
	return filepath.Join(c.DownloadPath, "unpacked")
}

// Validate checks the fields every stage depends on.
func (c Config) Validate() error {
	if c.DownloadPath == "" {
		return fmt.Errorf("config: %s is required", cfgKeyDownloadPath)
	}
	if c.GDBPath == "" {
		return fmt.Errorf("config: %s is required", cfgKeyGDBPath)
	}
	if c.StoreName == "" {
		return fmt.Errorf("config: %s must not be empty", cfgKeyStoreName)
	}
	return nil
}

// Load reads the configuration file at path. A missing file yields the
// defaults; required paths may still arrive via flag overrides, so
// callers validate after applying those.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault(cfgKeyCatalogURL, DefaultCatalogURL)
	v.SetDefault(cfgKeyStoreName, DefaultStoreName)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return Config{
		DownloadPath: v.GetString(cfgKeyDownloadPath),
		GDBPath:      v.GetString(cfgKeyGDBPath),
		CatalogURL:   v.GetString(cfgKeyCatalogURL),
		StoreName:    v.GetString(cfgKeyStoreName),
		ChromePath:   v.GetString(cfgKeyChromePath),
		UseBrowser:   v.GetBool(cfgKeyUseBrowser),
		DownloadList: v.GetStringSlice(cfgKeyDownloadList),
	}, nil
}
