// Package config loads fusionc's runtime configuration: a backend name
// and where the persistent kernel cache lives. Only the cache fields
// are read by cmd/fusionc (the cache command); the demo command does
// not read Backend and always runs against the Reference backend.
// It follows the teacher's own manifest convention (internal/build's
// ProjectManifest) — a JSON file with defaults substituted when the
// file is absent — plus environment overrides, since cmd/fusionc has
// no sentra.json equivalent of its own to read project metadata from.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the shape persisted to (and read from) fusionc.json.
type Config struct {
	Backend     string `json:"backend"`
	CacheDriver string `json:"cache_driver"`
	CacheDSN    string `json:"cache_dsn"`
}

// Default mirrors the flag defaults cmd/fusionc/commands already use,
// so a missing config file behaves exactly like unset flags.
func Default() Config {
	return Config{
		Backend:     "reference",
		CacheDriver: "sqlite3",
		CacheDSN:    "fusion_cache.db",
	}
}

// Load reads path, falling back to Default() if it does not exist,
// then applies any FUSIONC_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	if v := os.Getenv("FUSIONC_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("FUSIONC_CACHE_DRIVER"); v != "" {
		cfg.CacheDriver = v
	}
	if v := os.Getenv("FUSIONC_CACHE_DSN"); v != "" {
		cfg.CacheDSN = v
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, in the form Load reads.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}
