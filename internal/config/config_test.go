package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
api_base_url: https://backend.example
page_size: 25
tile_cache:
  ttl_seconds: 120
bounds:
  south: 35.69
  west: 51.34
  north: 35.71
  east: 51.36
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.APIBaseURL != "https://backend.example" {
		t.Fatalf("unexpected base url %q", c.APIBaseURL)
	}
	if c.PageSize != 25 {
		t.Fatalf("unexpected page size %d", c.PageSize)
	}
	if c.TileCacheTTL().Seconds() != 120 {
		t.Fatalf("unexpected tile ttl %v", c.TileCacheTTL())
	}
	// Untouched fields keep their defaults.
	if c.TileCache.MaxEntries != 80 {
		t.Fatalf("unexpected max entries %d", c.TileCache.MaxEntries)
	}
	if b := c.CampusBounds(); b.South != 35.69 || b.East != 51.36 {
		t.Fatalf("unexpected bounds %+v", b)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api_base_url: https://from-file\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("API_BASE_URL", "https://from-env")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.APIBaseURL != "https://from-env" {
		t.Fatalf("env must win, got %q", c.APIBaseURL)
	}
}

func TestLoad_RequiresBaseURL(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without api_base_url")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestCampusBounds_DefaultWhenUnset(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://backend.example")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b := c.CampusBounds()
	if b.South >= b.North || b.West >= b.East {
		t.Fatalf("degenerate default bounds %+v", b)
	}
}
