// Package config provides configuration management for the assessment services.
// This file contains the environment-only configuration used by the MCP server.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig configures standalone operation on a local SQLite file.
type LiteConfig struct {
	DataDir string // Base directory for the database and exports

	CacheMaxItems int           // Catalog memory cache size
	CacheTTL      time.Duration // Catalog memory cache entry lifetime

	// CatalogFile is an optional catalog JSON document imported at startup.
	CatalogFile string

	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:       filepath.Join(homeDir, ".yuanqi-assessment"),
		CacheMaxItems: 1000,
		CacheTTL:      15 * time.Minute,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("YUANQI_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("YUANQI_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("YUANQI_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}

	cfg.CatalogFile = os.Getenv("YUANQI_CATALOG_FILE")

	if v := os.Getenv("YUANQI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("YUANQI_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// DatabasePath returns the path to the SQLite database.
func (c *LiteConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "yuanqi.db")
}

// ExportDir returns the directory for catalog exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
