// Package config handles configuration loading for the forecast engine.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Cache   CacheConfig   `yaml:"cache"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Geocode GeocodeConfig `yaml:"geocode"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DataConfig contains datastore and dataset settings.
type DataConfig struct {
	SQLitePath   string `yaml:"sqlite_path"`
	AreaID       string `yaml:"area_id"`
	BaselineYear int    `yaml:"baseline_year"`
	HistoryFrom  int    `yaml:"history_from"`
	HistoryTo    int    `yaml:"history_to"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	DetailSizeMB     int `yaml:"detail_size_mb"`
	DetailTTLMinutes int `yaml:"detail_ttl_minutes"`
	LatticeEntries   int `yaml:"lattice_entries"`
	DatasetEntries   int `yaml:"dataset_entries"`
}

// FetchConfig bounds datastore interactions.
type FetchConfig struct {
	PageSize        int     `yaml:"page_size"`
	RowCap          int     `yaml:"row_cap"`
	MinChunk        int     `yaml:"min_chunk"`
	MaxConcurrent   int     `yaml:"max_concurrent"`
	LatticeCeiling  int     `yaml:"lattice_ceiling"`
	PaddingFraction float64 `yaml:"padding_fraction"`
}

// GeocodeConfig contains geocoding proxy settings.
type GeocodeConfig struct {
	Endpoint      string `yaml:"endpoint"`
	MinIntervalMS int    `yaml:"min_interval_ms"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Data: DataConfig{
			SQLitePath:   "./data/forecast.sqlite",
			AreaID:       "default",
			BaselineYear: 2026,
			HistoryFrom:  2019,
			HistoryTo:    2025,
		},
		Cache: CacheConfig{
			DetailSizeMB:     64,
			DetailTTLMinutes: 30,
			LatticeEntries:   256,
			DatasetEntries:   256,
		},
		Fetch: FetchConfig{
			PageSize:        1000,
			RowCap:          1000,
			MinChunk:        10,
			MaxConcurrent:   4,
			LatticeCeiling:  50000,
			PaddingFraction: 0.25,
		},
		Geocode: GeocodeConfig{
			Endpoint:      "https://nominatim.openstreetmap.org/search",
			MinIntervalMS: 1000,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Data.SQLitePath == "" {
		cfg.Data.SQLitePath = defaults.Data.SQLitePath
	}
	if cfg.Data.AreaID == "" {
		cfg.Data.AreaID = defaults.Data.AreaID
	}
	if cfg.Data.BaselineYear == 0 {
		cfg.Data.BaselineYear = defaults.Data.BaselineYear
	}
	if cfg.Data.HistoryFrom == 0 {
		cfg.Data.HistoryFrom = defaults.Data.HistoryFrom
	}
	if cfg.Data.HistoryTo == 0 {
		cfg.Data.HistoryTo = defaults.Data.HistoryTo
	}
	if cfg.Cache.DetailSizeMB == 0 {
		cfg.Cache.DetailSizeMB = defaults.Cache.DetailSizeMB
	}
	if cfg.Cache.DetailTTLMinutes == 0 {
		cfg.Cache.DetailTTLMinutes = defaults.Cache.DetailTTLMinutes
	}
	if cfg.Cache.LatticeEntries == 0 {
		cfg.Cache.LatticeEntries = defaults.Cache.LatticeEntries
	}
	if cfg.Cache.DatasetEntries == 0 {
		cfg.Cache.DatasetEntries = defaults.Cache.DatasetEntries
	}
	if cfg.Fetch.PageSize == 0 {
		cfg.Fetch.PageSize = defaults.Fetch.PageSize
	}
	if cfg.Fetch.RowCap == 0 {
		cfg.Fetch.RowCap = defaults.Fetch.RowCap
	}
	if cfg.Fetch.MinChunk == 0 {
		cfg.Fetch.MinChunk = defaults.Fetch.MinChunk
	}
	if cfg.Fetch.MaxConcurrent == 0 {
		cfg.Fetch.MaxConcurrent = defaults.Fetch.MaxConcurrent
	}
	if cfg.Fetch.LatticeCeiling == 0 {
		cfg.Fetch.LatticeCeiling = defaults.Fetch.LatticeCeiling
	}
	if cfg.Fetch.PaddingFraction == 0 {
		cfg.Fetch.PaddingFraction = defaults.Fetch.PaddingFraction
	}
	if cfg.Geocode.Endpoint == "" {
		cfg.Geocode.Endpoint = defaults.Geocode.Endpoint
	}
	if cfg.Geocode.MinIntervalMS == 0 {
		cfg.Geocode.MinIntervalMS = defaults.Geocode.MinIntervalMS
	}
}
