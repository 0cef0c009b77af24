// Package config loads the service configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"sharif_lostfound/map-core/internal/geo"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	// APIBaseURL is the lost-and-found backend; APIToken, when set, is sent
	// as a bearer token on upstream calls.
	APIBaseURL string `yaml:"api_base_url"`
	APIToken   string `yaml:"api_token"`

	// TileURLTemplate carries {z}/{x}/{y} placeholders. Both tile values are
	// opaque strings, consumed not parsed.
	TileURLTemplate string `yaml:"tile_url_template"`
	TileAttribution string `yaml:"tile_attribution"`

	// StorePath is the SQLite file backing the tile and category caches.
	StorePath string `yaml:"store_path"`

	PageSize int `yaml:"page_size"`

	TileCache struct {
		TTLSeconds int `yaml:"ttl_seconds"`
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"tile_cache"`

	Categories struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"categories"`

	Bounds struct {
		South float64 `yaml:"south"`
		West  float64 `yaml:"west"`
		North float64 `yaml:"north"`
		East  float64 `yaml:"east"`
	} `yaml:"bounds"`
}

func defaults() Config {
	var c Config
	c.HTTPAddr = ":8082"
	c.LogLevel = "info"
	c.TileURLTemplate = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	c.TileAttribution = "© OpenStreetMap contributors"
	c.StorePath = "map-core.db"
	c.PageSize = 10
	c.TileCache.TTLSeconds = 60
	c.TileCache.MaxEntries = 80
	c.Categories.TTLSeconds = 3600
	return c
}

// Load reads the YAML file at path when it exists and applies env overrides.
// An empty path skips the file; a missing file at an explicit path is an
// error.
func Load(path string) (Config, error) {
	c := defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	c.HTTPAddr = envOr("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.APIBaseURL = envOr("API_BASE_URL", c.APIBaseURL)
	c.APIToken = envOr("API_TOKEN", c.APIToken)
	c.TileURLTemplate = envOr("TILE_URL_TEMPLATE", c.TileURLTemplate)
	c.TileAttribution = envOr("TILE_ATTRIBUTION", c.TileAttribution)
	c.StorePath = envOr("STORE_PATH", c.StorePath)
	if v := os.Getenv("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid PAGE_SIZE %q", v)
		}
		c.PageSize = n
	}

	if c.APIBaseURL == "" {
		return Config{}, fmt.Errorf("api_base_url is required (or set API_BASE_URL)")
	}
	return c, nil
}

// CampusBounds returns the configured rectangle, falling back to the default
// campus bounds when the config leaves it zero.
func (c Config) CampusBounds() geo.Bounds {
	b := geo.Bounds{South: c.Bounds.South, West: c.Bounds.West, North: c.Bounds.North, East: c.Bounds.East}
	if b == (geo.Bounds{}) {
		return geo.Campus()
	}
	return b
}

func (c Config) TileCacheTTL() time.Duration {
	return time.Duration(c.TileCache.TTLSeconds) * time.Second
}

func (c Config) CategoryTTL() time.Duration {
	return time.Duration(c.Categories.TTLSeconds) * time.Second
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
