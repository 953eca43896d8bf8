package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSearch_MissingFileUsesDefaults(t *testing.T) {
	search, err := LoadSearch(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if search.PageSize != 100 || len(search.Localities) != 17 {
		t.Fatalf("unexpected defaults: page size %d, %d localities", search.PageSize, len(search.Localities))
	}
	last := search.Localities[16]
	if last.Locality != "sydney" || last.Postcode != "2000" {
		t.Fatalf("unexpected last locality %+v", last)
	}
}

func TestLoadSearch_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.yaml")
	data := `channel: lease
page_size: 0
localities:
  - { locality: newcastle, subdivision: nsw, postcode: "2300" }
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	search, err := LoadSearch(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if search.Channel != "lease" {
		t.Fatalf("expected channel override, got %q", search.Channel)
	}
	if search.PageSize != 100 {
		t.Fatalf("expected page size fallback to 100, got %d", search.PageSize)
	}
	if len(search.Localities) != 1 || search.Localities[0].Postcode != "2300" {
		t.Fatalf("unexpected localities %+v", search.Localities)
	}
	if search.BaseURL != "https://api.realcommercial.com.au" {
		t.Fatalf("unset keys should keep defaults, got %q", search.BaseURL)
	}
}

func TestLoadSearch_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.yaml")
	if err := os.WriteFile(path, []byte("localities: [unclosed"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSearch(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("SEARCH_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("DISCOVERY_TABLE", "out/listings.xlsx")
	t.Setenv("PAGE_DELAY_MIN", "2s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	t.Setenv("SCRAPE_INTERVAL", "6h")
	t.Setenv("RECORD_DELAY", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tables.Discovery != "out/listings.xlsx" || cfg.Tables.Enriched != "detailed_listings.csv" {
		t.Fatalf("unexpected tables %+v", cfg.Tables)
	}
	if cfg.Pacing.PageDelayMin != 2*time.Second || cfg.Pacing.RecordDelay != 5*time.Second {
		t.Fatalf("unexpected pacing %+v", cfg.Pacing)
	}
	if cfg.Retry.MaxAttempts != 0 {
		t.Fatalf("expected unlimited retries, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Scheduler.Interval != 6*time.Hour {
		t.Fatalf("unexpected interval %s", cfg.Scheduler.Interval)
	}
}
