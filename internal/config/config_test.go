package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"memvault/internal/errors"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memvault.yaml")

	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/mv-test"
	cfg.Cache.MemoryEntries = 42
	cfg.Chunker.TargetSize = 500
	cfg.Chunker.Overlap = 100
	cfg.Security.Encryption = false

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero memory entries", func(c *Config) { c.Cache.MemoryEntries = 0 }},
		{"bad ttl", func(c *Config) { c.Cache.TTL = "one hour" }},
		{"zero target size", func(c *Config) { c.Chunker.TargetSize = 0 }},
		{"overlap >= target", func(c *Config) { c.Chunker.Overlap = 1000 }},
		{"negative hot limit", func(c *Config) { c.Storage.HotLimit = -1 }},
		{"threshold out of range", func(c *Config) { c.Engine.SimilarityThreshold = 1.5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.IsValidation(err) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMVAULT_DATA_DIR", "/srv/memvault")
	t.Setenv("MEMVAULT_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/memvault" {
		t.Errorf("data dir override not applied, got %q", cfg.DataDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level override not applied, got %q", cfg.Logging.Level)
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Cache.TTLDuration().Hours(); got != 24 {
		t.Errorf("expected 24h TTL, got %vh", got)
	}
	if got := cfg.Storage.MigrationIntervalDuration().Hours(); got != 24 {
		t.Errorf("expected 24h migration interval, got %vh", got)
	}

	// Empty strings fall back to defaults rather than failing.
	cfg.Cache.TTL = ""
	if got := cfg.Cache.TTLDuration().Hours(); got != 24 {
		t.Errorf("expected fallback 24h TTL, got %vh", got)
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"

	if got := cfg.KeyFilePath(); got != filepath.Join("/data", "memvault.key") {
		t.Errorf("unexpected key path %q", got)
	}
	cfg.Security.KeyFile = "/etc/memvault/key"
	if got := cfg.KeyFilePath(); got != "/etc/memvault/key" {
		t.Errorf("explicit key file not honored, got %q", got)
	}
	if got := cfg.StorageDir(); got != filepath.Join("/data", "storage") {
		t.Errorf("unexpected storage dir %q", got)
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "memvault.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}
